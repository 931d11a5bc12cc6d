package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
	"quizforge-backend/internal/services"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

type AuthHandler struct {
	authService authService
}

func NewAuthHandler(authService authService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Registration successful. Please log in.",
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	tokens, err := h.authService.Login(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	tokens, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		log.Printf("logout: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return errorRespWithFields(code, message, nil, r)
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

const modelFailureMessage = "Could not produce a result from the AI model. Please try again."

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *services.ValidationError
		conflictErr   *services.ConflictError
		notFoundErr   *services.NotFoundError
		unauthErr     *services.UnauthorizedError
		forbiddenErr  *services.ForbiddenError
		rateLimitErr  *services.RateLimitError
		modelAuthErr  *llm.AuthenticationError
		modelInvalid  *llm.ValidationError
		transportErr  *llm.TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflictErr.Message, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &unauthErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthErr.Message, r))
	case errors.As(err, &forbiddenErr):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbiddenErr.Message, r))
	case errors.As(err, &rateLimitErr):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimitErr.Message, r))

	case errors.Is(err, quiz.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Not found", r))
	case errors.Is(err, quiz.ErrAttemptComplete):
		writeJSON(w, http.StatusConflict, errorResp("ATTEMPT_COMPLETE", "This attempt is already complete", r))
	case errors.Is(err, quiz.ErrAttemptIncomplete):
		writeJSON(w, http.StatusConflict, errorResp("ATTEMPT_INCOMPLETE", "Finish the attempt to see its results", r))
	case errors.Is(err, quiz.ErrOutOfOrder):
		writeJSON(w, http.StatusConflict, errorResp("OUT_OF_ORDER", "Questions must be answered in order", r))
	case errors.Is(err, quiz.ErrAlreadyAnswered):
		writeJSON(w, http.StatusConflict, errorResp("ALREADY_ANSWERED", "This question has already been answered", r))
	case errors.Is(err, quiz.ErrNoQuestions):
		writeJSON(w, http.StatusConflict, errorResp("NO_QUESTIONS", "This test has no questions", r))

	case errors.As(err, &modelAuthErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("API_KEY_INVALID", "Your API key was rejected. Please update it in settings.", r))
	case errors.As(err, &modelInvalid):
		writeJSON(w, http.StatusBadGateway, errorRespWithFields("MODEL_INVALID_RESPONSE", modelFailureMessage,
			map[string]string{"diagnostic": modelInvalid.Diagnostic}, r))
	case errors.As(err, &transportErr), errors.Is(err, llm.ErrExhausted):
		writeJSON(w, http.StatusBadGateway, errorResp("MODEL_UNAVAILABLE", modelFailureMessage, r))

	default:
		log.Printf("unhandled error [%s %s]: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
