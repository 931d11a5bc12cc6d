package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
)

type themeService interface {
	Generate(ctx context.Context, userID uuid.UUID, description string) (*models.Theme, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Theme, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type ThemeHandler struct {
	themes themeService
}

func NewThemeHandler(themes themeService) *ThemeHandler {
	return &ThemeHandler{themes: themes}
}

func (h *ThemeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.ThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	theme, err := h.themes.Generate(r.Context(), middleware.GetUserID(r.Context()), req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

func (h *ThemeHandler) Get(w http.ResponseWriter, r *http.Request) {
	theme, err := h.themes.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, theme)
}

// Stylesheet serves the theme as CSS so the frontend can link it directly.
func (h *ThemeHandler) Stylesheet(w http.ResponseWriter, r *http.Request) {
	theme, err := h.themes.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write([]byte(theme.CSS))
}

func (h *ThemeHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.themes.Clear(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Theme reset to default"})
}
