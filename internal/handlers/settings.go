package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
)

type settingsService interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
	UpdateAPIKey(ctx context.Context, userID uuid.UUID, apiKey string) error
}

type SettingsHandler struct {
	settings settingsService
}

func NewSettingsHandler(settings settingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.settings.UpdateAPIKey(r.Context(), middleware.GetUserID(r.Context()), req.APIKey); err != nil {
		handleServiceError(w, r, err)
		return
	}

	message := "API key updated"
	if req.APIKey == "" {
		message = "API key cleared"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
