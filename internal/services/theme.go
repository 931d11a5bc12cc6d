package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/models"
)

const themeTTL = 24 * time.Hour

type ThemeService struct {
	redis  *redis.Client
	models *ModelFactory
	now    func() time.Time
}

func NewThemeService(redisClient *redis.Client, factory *ModelFactory) *ThemeService {
	return &ThemeService{redis: redisClient, models: factory, now: time.Now}
}

func themeKey(userID uuid.UUID) string {
	return "theme:" + userID.String()
}

func validateThemeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(description); n < 3 || n > 100 {
		return "", &ValidationError{Fields: map[string]string{
			"description": "Theme description must be between 3 and 100 characters",
		}}
	}
	return description, nil
}

// Generate asks the user's model for a stylesheet and caches it for a day.
func (s *ThemeService) Generate(ctx context.Context, userID uuid.UUID, description string) (*models.Theme, error) {
	description, err := validateThemeDescription(description)
	if err != nil {
		return nil, err
	}

	gen, err := s.models.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	css, err := gen.GenerateCSSTheme(ctx, description)
	if err != nil {
		return nil, err
	}

	theme := &models.Theme{
		Description: description,
		CSS:         css,
		CreatedAt:   s.now().UTC(),
	}
	data, err := json.Marshal(theme)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, themeKey(userID), data, themeTTL).Err(); err != nil {
		return nil, fmt.Errorf("store theme: %w", err)
	}
	return theme, nil
}

func (s *ThemeService) Get(ctx context.Context, userID uuid.UUID) (*models.Theme, error) {
	data, err := s.redis.Get(ctx, themeKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Message: "No custom theme set"}
	}
	if err != nil {
		return nil, err
	}

	theme := &models.Theme{}
	if err := json.Unmarshal(data, theme); err != nil {
		return nil, fmt.Errorf("decode theme: %w", err)
	}
	return theme, nil
}

func (s *ThemeService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.redis.Del(ctx, themeKey(userID)).Err()
}
