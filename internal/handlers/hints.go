package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
)

// Hint returns the question's cached hint, generating one on first request.
func (h *AttemptHandler) Hint(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	hint, cached, err := h.engine.GetOrCreateHint(r.Context(), questionID, userID, h.assistants.AssistantSource(userID))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.HintResponse{
		QuestionID: questionID,
		Hint:       hint,
		Cached:     cached,
	})
}
