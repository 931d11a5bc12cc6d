package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/services"
)

const (
	defaultNumQuestions = 5
	maxNumQuestions     = 25
	maxTitleLength      = 200
	defaultTestTitle    = "Untitled Test"
)

type testRepository interface {
	GetTest(ctx context.Context, id uuid.UUID) (*models.TestDefinition, error)
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]*models.TestSummary, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type jobRepository interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type sourceExtractor interface {
	ExtractUpload(filename string, r io.ReaderAt, size int64) (string, error)
}

type TestHandler struct {
	tests          testRepository
	jobs           jobRepository
	queue          jobQueue
	extract        sourceExtractor
	maxSourceChars int
}

func NewTestHandler(tests testRepository, jobs jobRepository, queue jobQueue, extract sourceExtractor, maxSourceChars int) *TestHandler {
	return &TestHandler{
		tests:          tests,
		jobs:           jobs,
		queue:          queue,
		extract:        extract,
		maxSourceChars: maxSourceChars,
	}
}

// Generate accepts pasted text as JSON or a multipart form with a pdf_file,
// and queues a test-generation job.
func (h *TestHandler) Generate(w http.ResponseWriter, r *http.Request) {
	req, fieldErrors, err := h.readGenerateRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	source := strings.TrimSpace(req.Text)
	truncated := false
	if h.maxSourceChars > 0 && utf8.RuneCountInString(source) > h.maxSourceChars {
		source = string([]rune(source)[:h.maxSourceChars])
		truncated = true
	}

	cfg := models.TestGenerationConfig{
		Title:         req.Title,
		SourceText:    source,
		NumQuestions:  req.NumQuestions,
		QuestionTypes: req.QuestionTypes,
	}
	configBytes, _ := json.Marshal(cfg)

	job := &models.Job{
		UserID:     userID,
		Type:       models.JobTypeTestGeneration,
		ConfigJSON: configBytes,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		log.Printf("failed to enqueue test-generation job %s: %v", job.ID, err)
		_ = h.jobs.UpdateStatus(r.Context(), job.ID, models.JobStatusFailed)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue test generation", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":           job.ID,
		"source_chars":     utf8.RuneCountInString(source),
		"source_truncated": truncated,
	})
}

func (h *TestHandler) readGenerateRequest(w http.ResponseWriter, r *http.Request) (*models.GenerateTestRequest, map[string]string, error) {
	req := &models.GenerateTestRequest{}
	fieldErrors := map[string]string{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+1<<20)
		if err := r.ParseMultipartForm(services.MaxUploadSize); err != nil {
			return nil, nil, errors.New("Invalid form data")
		}
		req.Title = r.FormValue("title")
		req.Text = r.FormValue("text")
		if n := r.FormValue("num_questions"); n != "" {
			parsed, err := strconv.Atoi(n)
			if err != nil {
				fieldErrors["num_questions"] = "Must be a whole number"
			}
			req.NumQuestions = parsed
		}
		req.QuestionTypes = r.Form["question_types"]

		if strings.TrimSpace(req.Text) == "" {
			text, msg := h.readUpload(r)
			if msg != "" {
				fieldErrors["pdf_file"] = msg
			}
			req.Text = text
		}
	} else if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, nil, errors.New("Invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		req.Title = defaultTestTitle
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		fieldErrors["title"] = "Title must be at most 200 characters"
	}

	if req.NumQuestions == 0 {
		req.NumQuestions = defaultNumQuestions
	}
	if req.NumQuestions < 1 || req.NumQuestions > maxNumQuestions {
		fieldErrors["num_questions"] = "Must be between 1 and 25 questions"
	}

	req.QuestionTypes = lo.Map(req.QuestionTypes, func(t string, _ int) string {
		return strings.ToLower(strings.TrimSpace(t))
	})
	unknown := lo.Reject(req.QuestionTypes, func(t string, _ int) bool {
		return lo.Contains(llm.AllQuestionTypes, t)
	})
	if len(unknown) > 0 {
		fieldErrors["question_types"] = "Unknown question type: " + unknown[0]
	}

	if strings.TrimSpace(req.Text) == "" && fieldErrors["pdf_file"] == "" {
		fieldErrors["text"] = "Please paste text or upload a PDF file"
	}

	return req, fieldErrors, nil
}

// readUpload returns the extracted text or a user-facing message.
func (h *TestHandler) readUpload(r *http.Request) (string, string) {
	file, header, err := r.FormFile("pdf_file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", ""
	}
	if err != nil {
		return "", "Could not read uploaded file"
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(header.Filename)) != ".pdf" {
		return "", "PDF files only"
	}

	text, err := h.extract.ExtractUpload(header.Filename, file, header.Size)
	if err != nil {
		log.Printf("pdf extraction failed for %q: %v", header.Filename, err)
		if errors.Is(err, services.ErrNoText) {
			return "", "No usable source material could be extracted from this PDF"
		}
		return "", "Could not read this PDF"
	}
	return text, ""
}

func (h *TestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.tests.ListSummaries(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch tests", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tests": summaries})
}

func (h *TestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid test ID", r))
		return
	}

	test, err := h.tests.GetTest(r.Context(), id)
	if err != nil || test.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Test not found", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                 test.ID,
		"title":              test.Title,
		"source_snippet":     test.SourceSnippet,
		"created_at":         test.CreatedAt,
		"max_possible_score": float64(len(test.Questions)),
		"questions": lo.Map(test.Questions, func(q models.Question, _ int) models.PublicQuestion {
			return q.Public()
		}),
	})
}

func (h *TestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid test ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.tests.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Test not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete test", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Test deleted"})
}
