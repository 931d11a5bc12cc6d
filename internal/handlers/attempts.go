package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
)

const maxAnswerLength = 5000

type attemptEngine interface {
	StartAttempt(ctx context.Context, testID, userID uuid.UUID) (*models.Attempt, *models.TestDefinition, error)
	View(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptView, error)
	QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*models.QuestionView, error)
	SubmitAnswer(ctx context.Context, attemptID, userID uuid.UUID, index int, input string, source quiz.AssistantSource) (*quiz.Submission, error)
	GetOrCreateHint(ctx context.Context, questionID, userID uuid.UUID, source quiz.AssistantSource) (string, bool, error)
	Results(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptResults, error)
}

type assistantProvider interface {
	AssistantSource(userID uuid.UUID) quiz.AssistantSource
}

type AttemptHandler struct {
	engine     attemptEngine
	assistants assistantProvider
}

func NewAttemptHandler(engine attemptEngine, assistants assistantProvider) *AttemptHandler {
	return &AttemptHandler{engine: engine, assistants: assistants}
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	testID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid test ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	attempt, test, err := h.engine.StartAttempt(r.Context(), testID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	first := test.Questions[0].Public()
	writeJSON(w, http.StatusCreated, models.AttemptView{
		Attempt:          attempt,
		TestTitle:        test.Title,
		QuestionCount:    len(test.Questions),
		MaxPossibleScore: float64(len(test.Questions)),
		CurrentQuestion:  &first,
	})
}

func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.engine.View(r.Context(), attemptID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) Question(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}
	index, ok := questionIndexParam(w, r)
	if !ok {
		return
	}

	view, err := h.engine.QuestionAt(r.Context(), attemptID, middleware.GetUserID(r.Context()), index)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}
	index, ok := questionIndexParam(w, r)
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if len(req.Answer) > maxAnswerLength {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"answer": "Answer is too long"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	sub, err := h.engine.SubmitAnswer(r.Context(), attemptID, userID, index, req.Answer, h.assistants.AssistantSource(userID))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.SubmitAnswerResponse{
		Answer:               sub.Answer,
		CorrectAnswer:        sub.CorrectAnswer,
		NextQuestionIndex:    sub.Attempt.CurrentQuestionIndex,
		AttemptComplete:      sub.Attempt.IsComplete,
		TotalScore:           sub.Attempt.TotalScore,
		GradingWarning:       sub.GradingDegraded,
		GradingWarningDetail: sub.DegradedReason,
	})
}

func (h *AttemptHandler) Results(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := attemptIDParam(w, r)
	if !ok {
		return
	}

	results, err := h.engine.Results(r.Context(), attemptID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func attemptIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid attempt ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func questionIndexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question index", r))
		return 0, false
	}
	return index, true
}
