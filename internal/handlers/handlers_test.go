package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
	"quizforge-backend/internal/services"
)

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

// ─── Stubs ───

type stubJobRepo struct {
	created  []*models.Job
	statuses map[uuid.UUID]string
	jobs     map[uuid.UUID]*models.Job
	err      error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{statuses: map[uuid.UUID]string{}, jobs: map[uuid.UUID]*models.Job{}}
}

func (s *stubJobRepo) Create(ctx context.Context, j *models.Job) error {
	if s.err != nil {
		return s.err
	}
	j.ID = uuid.New()
	j.Status = models.JobStatusPending
	s.created = append(s.created, j)
	s.jobs[j.ID] = j
	return nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return j, nil
}

func (s *stubJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.statuses[id] = status
	return nil
}

type stubQueue struct {
	enqueued []*models.Job
	err      error
}

func (s *stubQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractUpload(filename string, r io.ReaderAt, size int64) (string, error) {
	return s.text, s.err
}

type stubTestRepo struct {
	tests     map[uuid.UUID]*models.TestDefinition
	deleteErr error
}

func (s *stubTestRepo) GetTest(ctx context.Context, id uuid.UUID) (*models.TestDefinition, error) {
	t, ok := s.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (s *stubTestRepo) ListSummaries(ctx context.Context, userID uuid.UUID) ([]*models.TestSummary, error) {
	return nil, nil
}

func (s *stubTestRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return s.deleteErr
}

// ─── Test generation ───

func newTestHandlerForTest(maxChars int) (*TestHandler, *stubJobRepo, *stubQueue, *stubExtractor) {
	jobs := newStubJobRepo()
	queue := &stubQueue{}
	extract := &stubExtractor{}
	h := NewTestHandler(&stubTestRepo{}, jobs, queue, extract, maxChars)
	return h, jobs, queue, extract
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"too many questions", `{"text":"some notes","num_questions":30}`, "num_questions"},
		{"negative questions", `{"text":"some notes","num_questions":-1}`, "num_questions"},
		{"unknown question type", `{"text":"some notes","question_types":["essay"]}`, "question_types"},
		{"missing text", `{"title":"Biology"}`, "text"},
		{"blank text", `{"text":"   "}`, "text"},
		{"long title", `{"text":"some notes","title":"` + strings.Repeat("t", 201) + `"}`, "title"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, jobs, queue, _ := newTestHandlerForTest(8000)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/tests", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req = withUser(req, uuid.New())
			rr := httptest.NewRecorder()

			h.Generate(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			apiErr := decodeError(t, rr)
			if apiErr.Fields[tc.field] == "" {
				t.Errorf("expected field error on %q, got %v", tc.field, apiErr.Fields)
			}
			if len(jobs.created) != 0 || len(queue.enqueued) != 0 {
				t.Error("no job should be created for an invalid request")
			}
		})
	}
}

func TestGenerate_QueuesTruncatedSource(t *testing.T) {
	h, jobs, queue, _ := newTestHandlerForTest(10)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests",
		strings.NewReader(`{"text":"  abcdefghijklmnopqrstuvwxyz  ","question_types":["Multiple_Choice"]}`))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(req, userID)
	rr := httptest.NewRecorder()

	h.Generate(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		JobID           uuid.UUID `json:"job_id"`
		SourceChars     int       `json:"source_chars"`
		SourceTruncated bool      `json:"source_truncated"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.SourceTruncated || resp.SourceChars != 10 {
		t.Errorf("expected truncation to 10 chars, got %+v", resp)
	}
	if len(jobs.created) != 1 || len(queue.enqueued) != 1 {
		t.Fatalf("expected one job created and queued, got %d/%d", len(jobs.created), len(queue.enqueued))
	}

	job := jobs.created[0]
	if job.UserID != userID || job.Type != models.JobTypeTestGeneration || job.ID != resp.JobID {
		t.Errorf("unexpected job %+v", job)
	}
	var cfg models.TestGenerationConfig
	if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.SourceText != "abcdefghij" {
		t.Errorf("source = %q", cfg.SourceText)
	}
	if cfg.Title != defaultTestTitle || cfg.NumQuestions != defaultNumQuestions {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestGenerate_EnqueueFailureMarksJobFailed(t *testing.T) {
	h, jobs, queue, _ := newTestHandlerForTest(8000)
	queue.err = errors.New("redis down")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests", strings.NewReader(`{"text":"notes"}`))
	req = withUser(req, uuid.New())
	rr := httptest.NewRecorder()

	h.Generate(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if got := jobs.statuses[jobs.created[0].ID]; got != models.JobStatusFailed {
		t.Errorf("job status = %q, want failed", got)
	}
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("pdf_file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestGenerate_Multipart(t *testing.T) {
	t.Run("pdf upload", func(t *testing.T) {
		h, jobs, _, extract := newTestHandlerForTest(8000)
		extract.text = "Extracted lecture text"

		req := multipartRequest(t, map[string]string{"title": "Lecture 3", "num_questions": "7"}, "notes.pdf", []byte("%PDF-1.4"))
		rr := httptest.NewRecorder()
		h.Generate(rr, withUser(req, uuid.New()))

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
		}
		var cfg models.TestGenerationConfig
		json.Unmarshal(jobs.created[0].ConfigJSON, &cfg)
		if cfg.SourceText != "Extracted lecture text" || cfg.NumQuestions != 7 || cfg.Title != "Lecture 3" {
			t.Errorf("unexpected config %+v", cfg)
		}
	})

	t.Run("non pdf rejected", func(t *testing.T) {
		h, _, _, _ := newTestHandlerForTest(8000)
		req := multipartRequest(t, nil, "notes.docx", []byte("data"))
		rr := httptest.NewRecorder()
		h.Generate(rr, withUser(req, uuid.New()))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if msg := decodeError(t, rr).Fields["pdf_file"]; msg != "PDF files only" {
			t.Errorf("pdf_file error = %q", msg)
		}
	})

	t.Run("pdf without text", func(t *testing.T) {
		h, _, _, extract := newTestHandlerForTest(8000)
		extract.err = fmt.Errorf("extract: %w", services.ErrNoText)
		req := multipartRequest(t, nil, "scan.pdf", []byte("%PDF-1.4"))
		rr := httptest.NewRecorder()
		h.Generate(rr, withUser(req, uuid.New()))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if msg := decodeError(t, rr).Fields["pdf_file"]; !strings.HasPrefix(msg, "No usable source material") {
			t.Errorf("pdf_file error = %q", msg)
		}
	})

	t.Run("pasted text wins over file", func(t *testing.T) {
		h, jobs, _, extract := newTestHandlerForTest(8000)
		extract.err = errors.New("should not be called")
		req := multipartRequest(t, map[string]string{"text": "pasted"}, "notes.pdf", []byte("%PDF"))
		rr := httptest.NewRecorder()
		h.Generate(rr, withUser(req, uuid.New()))

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
		}
		var cfg models.TestGenerationConfig
		json.Unmarshal(jobs.created[0].ConfigJSON, &cfg)
		if cfg.SourceText != "pasted" {
			t.Errorf("source = %q", cfg.SourceText)
		}
	})
}

func TestGetTest_HidesAnswersAndOtherUsers(t *testing.T) {
	owner := uuid.New()
	testID := uuid.New()
	repo := &stubTestRepo{tests: map[uuid.UUID]*models.TestDefinition{
		testID: {
			ID:     testID,
			UserID: owner,
			Title:  "Cells",
			Questions: []models.Question{
				{ID: uuid.New(), Type: models.MultipleChoice, Text: "Q1", Options: []string{"a", "b"}, AnswerInfo: models.IndexAnswer(1)},
				{ID: uuid.New(), Type: models.FillInTheBlank, Text: "Q2", AnswerInfo: models.TextAnswer("mitochondria")},
			},
		},
	}}
	h := NewTestHandler(repo, newStubJobRepo(), &stubQueue{}, &stubExtractor{}, 8000)

	t.Run("owner", func(t *testing.T) {
		req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/tests/"+testID.String(), nil), "id", testID.String())
		rr := httptest.NewRecorder()
		h.Get(rr, withUser(req, owner))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		body := rr.Body.String()
		if strings.Contains(body, "answer_info") || strings.Contains(body, "mitochondria") {
			t.Errorf("response leaks answers: %s", body)
		}
		if !strings.Contains(body, `"max_possible_score":2`) {
			t.Errorf("missing max score: %s", body)
		}
	})

	t.Run("other user", func(t *testing.T) {
		req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/tests/"+testID.String(), nil), "id", testID.String())
		rr := httptest.NewRecorder()
		h.Get(rr, withUser(req, uuid.New()))

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})
}

func TestDeleteTest_NotFound(t *testing.T) {
	h := NewTestHandler(&stubTestRepo{deleteErr: pgx.ErrNoRows}, newStubJobRepo(), &stubQueue{}, &stubExtractor{}, 8000)
	id := uuid.New()
	req := withParams(httptest.NewRequest(http.MethodDelete, "/api/v1/tests/"+id.String(), nil), "id", id.String())
	rr := httptest.NewRecorder()
	h.Delete(rr, withUser(req, uuid.New()))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// ─── Attempts ───

type stubEngine struct {
	submission *quiz.Submission
	err        error
	hint       string
	cached     bool

	gotIndex  int
	gotInput  string
	gotSource bool
}

func (s *stubEngine) StartAttempt(ctx context.Context, testID, userID uuid.UUID) (*models.Attempt, *models.TestDefinition, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	test := &models.TestDefinition{ID: testID, Title: "T", Questions: []models.Question{
		{ID: uuid.New(), Type: models.FreeResponse, Text: "Explain osmosis"},
	}}
	return &models.Attempt{ID: uuid.New(), TestID: testID, UserID: userID}, test, nil
}

func (s *stubEngine) View(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptView, error) {
	return nil, s.err
}

func (s *stubEngine) QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*models.QuestionView, error) {
	s.gotIndex = index
	return &models.QuestionView{AttemptID: attemptID}, s.err
}

func (s *stubEngine) SubmitAnswer(ctx context.Context, attemptID, userID uuid.UUID, index int, input string, source quiz.AssistantSource) (*quiz.Submission, error) {
	s.gotIndex, s.gotInput, s.gotSource = index, input, source != nil
	return s.submission, s.err
}

func (s *stubEngine) GetOrCreateHint(ctx context.Context, questionID, userID uuid.UUID, source quiz.AssistantSource) (string, bool, error) {
	return s.hint, s.cached, s.err
}

func (s *stubEngine) Results(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptResults, error) {
	return nil, s.err
}

type stubAssistants struct{}

func (stubAssistants) AssistantSource(userID uuid.UUID) quiz.AssistantSource {
	return func(ctx context.Context) (quiz.Assistant, error) { return nil, errors.New("unused") }
}

func submitRequest(attemptID uuid.UUID, index, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+attemptID.String()+"/questions/"+index+"/answer", strings.NewReader(body))
	return withUser(withParams(req, "id", attemptID.String(), "index", index), uuid.New())
}

func TestStartAttempt(t *testing.T) {
	h := NewAttemptHandler(&stubEngine{}, stubAssistants{})
	testID := uuid.New()
	req := withParams(httptest.NewRequest(http.MethodPost, "/", nil), "id", testID.String())
	rr := httptest.NewRecorder()
	h.Start(rr, withUser(req, uuid.New()))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var view models.AttemptView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.CurrentQuestion == nil || view.CurrentQuestion.Text != "Explain osmosis" || view.QuestionCount != 1 {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestSubmitAnswer(t *testing.T) {
	attemptID := uuid.New()
	correct := true

	t.Run("graded", func(t *testing.T) {
		engine := &stubEngine{submission: &quiz.Submission{
			Answer:        &models.Answer{UserInput: "B", IsCorrect: &correct, Score: 1},
			Attempt:       &models.Attempt{ID: attemptID, CurrentQuestionIndex: 3, TotalScore: 2.5},
			CorrectAnswer: "B",
		}}
		h := NewAttemptHandler(engine, stubAssistants{})
		rr := httptest.NewRecorder()
		h.Submit(rr, submitRequest(attemptID, "2", `{"answer":"B"}`))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if engine.gotIndex != 2 || engine.gotInput != "B" || !engine.gotSource {
			t.Errorf("engine called with index=%d input=%q source=%v", engine.gotIndex, engine.gotInput, engine.gotSource)
		}
		var resp models.SubmitAnswerResponse
		json.NewDecoder(rr.Body).Decode(&resp)
		if resp.NextQuestionIndex != 3 || resp.TotalScore != 2.5 || resp.GradingWarning {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("degraded grading is a warning", func(t *testing.T) {
		engine := &stubEngine{submission: &quiz.Submission{
			Answer:          &models.Answer{UserInput: "because"},
			Attempt:         &models.Attempt{ID: attemptID, CurrentQuestionIndex: 1, IsComplete: true},
			GradingDegraded: true,
			DegradedReason:  "model unavailable",
		}}
		h := NewAttemptHandler(engine, stubAssistants{})
		rr := httptest.NewRecorder()
		h.Submit(rr, submitRequest(attemptID, "0", `{"answer":"because"}`))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp models.SubmitAnswerResponse
		json.NewDecoder(rr.Body).Decode(&resp)
		if !resp.GradingWarning || resp.GradingWarningDetail != "model unavailable" || !resp.AttemptComplete {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("bad index", func(t *testing.T) {
		h := NewAttemptHandler(&stubEngine{}, stubAssistants{})
		rr := httptest.NewRecorder()
		h.Submit(rr, submitRequest(attemptID, "-1", `{"answer":"x"}`))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("answer too long", func(t *testing.T) {
		h := NewAttemptHandler(&stubEngine{}, stubAssistants{})
		rr := httptest.NewRecorder()
		body := `{"answer":"` + strings.Repeat("a", maxAnswerLength+1) + `"}`
		h.Submit(rr, submitRequest(attemptID, "0", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("engine errors", func(t *testing.T) {
		cases := []struct {
			err  error
			code string
		}{
			{quiz.ErrOutOfOrder, "OUT_OF_ORDER"},
			{quiz.ErrAlreadyAnswered, "ALREADY_ANSWERED"},
			{quiz.ErrAttemptComplete, "ATTEMPT_COMPLETE"},
			{quiz.ErrNotFound, "NOT_FOUND"},
		}
		for _, c := range cases {
			h := NewAttemptHandler(&stubEngine{err: c.err}, stubAssistants{})
			rr := httptest.NewRecorder()
			h.Submit(rr, submitRequest(attemptID, "0", `{"answer":"x"}`))
			if got := decodeError(t, rr).Code; got != c.code {
				t.Errorf("%v: code = %q, want %q", c.err, got, c.code)
			}
		}
	})
}

func TestHint(t *testing.T) {
	questionID := uuid.New()
	h := NewAttemptHandler(&stubEngine{hint: "Think about membranes", cached: true}, stubAssistants{})
	req := withParams(httptest.NewRequest(http.MethodPost, "/", nil), "id", questionID.String())
	rr := httptest.NewRecorder()
	h.Hint(rr, withUser(req, uuid.New()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp models.HintResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Hint != "Think about membranes" || !resp.Cached || resp.QuestionID != questionID {
		t.Errorf("unexpected response %+v", resp)
	}
}

// ─── Error mapping ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"username": "too short"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "taken"}, http.StatusConflict, "CONFLICT"},
		{"unauthorized", &services.UnauthorizedError{Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing api key", &services.ForbiddenError{Message: "set key"}, http.StatusForbidden, "FORBIDDEN"},
		{"wrapped not found", fmt.Errorf("load: %w", quiz.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"incomplete", quiz.ErrAttemptIncomplete, http.StatusConflict, "ATTEMPT_INCOMPLETE"},
		{"no questions", quiz.ErrNoQuestions, http.StatusConflict, "NO_QUESTIONS"},
		{"model auth", &llm.AuthenticationError{}, http.StatusUnauthorized, "API_KEY_INVALID"},
		{"model invalid", &llm.ValidationError{Diagnostic: "missing field"}, http.StatusBadGateway, "MODEL_INVALID_RESPONSE"},
		{"model transport", &llm.TransportError{}, http.StatusBadGateway, "MODEL_UNAVAILABLE"},
		{"exhausted", llm.ErrExhausted, http.StatusBadGateway, "MODEL_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.code {
				t.Errorf("code = %q, want %q", apiErr.Code, tc.code)
			}
			if apiErr.RequestID != "req-1" {
				t.Errorf("request id = %q", apiErr.RequestID)
			}
		})
	}
}

// ─── Jobs, settings, auth ───

func TestGetJob_Ownership(t *testing.T) {
	jobs := newStubJobRepo()
	owner := uuid.New()
	job := &models.Job{UserID: owner, Type: models.JobTypeTestGeneration, ConfigJSON: json.RawMessage(`{"source_text":"secret"}`)}
	jobs.Create(context.Background(), job)
	h := NewJobHandler(jobs)

	req := withParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", job.ID.String())
	rr := httptest.NewRecorder()
	h.GetJob(rr, withUser(req, owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Error("job view must not echo the source text")
	}

	rr = httptest.NewRecorder()
	h.GetJob(rr, withUser(req, uuid.New()))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other user: expected 404, got %d", rr.Code)
	}
}

type stubSettings struct {
	gotKey string
	err    error
}

func (s *stubSettings) Get(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	return &models.UserSettings{Username: "alice", APIKeySet: true, Provider: "openai"}, nil
}

func (s *stubSettings) UpdateAPIKey(ctx context.Context, userID uuid.UUID, apiKey string) error {
	s.gotKey = apiKey
	return s.err
}

func TestUpdateAPIKey(t *testing.T) {
	t.Run("cleared", func(t *testing.T) {
		svc := &stubSettings{}
		h := NewSettingsHandler(svc)
		req := withUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"api_key":""}`)), uuid.New())
		rr := httptest.NewRecorder()
		h.UpdateAPIKey(rr, req)

		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "API key cleared") {
			t.Fatalf("got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc := &stubSettings{err: &services.ValidationError{Fields: map[string]string{"api_key": "too short"}}}
		h := NewSettingsHandler(svc)
		req := withUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"api_key":"abc"}`)), uuid.New())
		rr := httptest.NewRecorder()
		h.UpdateAPIKey(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if svc.gotKey != "abc" {
			t.Errorf("service got %q", svc.gotKey)
		}
	})
}

type stubAuthService struct {
	user   *models.User
	tokens *models.AuthTokens
	err    error
}

func (s *stubAuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	return s.user, s.err
}

func (s *stubAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	return s.tokens, s.err
}

func (s *stubAuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	return s.tokens, s.err
}

func (s *stubAuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.err
}

func TestAuthHandler(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		h := NewAuthHandler(&stubAuthService{user: &models.User{ID: uuid.New(), Username: "alice"}})
		rr := httptest.NewRecorder()
		h.Register(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","password":"secret1"}`)))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "access_token") {
			t.Error("register should not issue tokens")
		}
	})

	t.Run("register malformed", func(t *testing.T) {
		h := NewAuthHandler(&stubAuthService{})
		rr := httptest.NewRecorder()
		h.Register(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("login rejected", func(t *testing.T) {
		h := NewAuthHandler(&stubAuthService{err: &services.UnauthorizedError{Message: "Invalid username or password"}})
		rr := httptest.NewRecorder()
		h.Login(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","password":"nope"}`)))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("refresh requires token", func(t *testing.T) {
		h := NewAuthHandler(&stubAuthService{})
		rr := httptest.NewRecorder()
		h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("logout always succeeds", func(t *testing.T) {
		h := NewAuthHandler(&stubAuthService{err: errors.New("redis down")})
		rr := httptest.NewRecorder()
		h.Logout(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refresh_token":"abc"}`)))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}
