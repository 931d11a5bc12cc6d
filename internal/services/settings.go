package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"quizforge-backend/internal/models"
	"quizforge-backend/internal/secrets"
)

const minAPIKeyLength = 10

type apiKeyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetAPIKey(ctx context.Context, userID uuid.UUID, encrypted *string) error
}

type SettingsService struct {
	users    apiKeyStore
	cipher   *secrets.Cipher
	provider string
	model    string
}

func NewSettingsService(users apiKeyStore, cipher *secrets.Cipher, provider, model string) *SettingsService {
	return &SettingsService{users: users, cipher: cipher, provider: provider, model: model}
}

// UpdateAPIKey encrypts and stores the key. An empty key clears it.
func (s *SettingsService) UpdateAPIKey(ctx context.Context, userID uuid.UUID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return s.users.SetAPIKey(ctx, userID, nil)
	}
	if len(apiKey) < minAPIKeyLength {
		return &ValidationError{Fields: map[string]string{
			"api_key": fmt.Sprintf("API key must be at least %d characters", minAPIKeyLength),
		}}
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	return s.users.SetAPIKey(ctx, userID, &encrypted)
}

func (s *SettingsService) Get(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	return &models.UserSettings{
		Username:  user.Username,
		APIKeySet: user.HasAPIKey(),
		Provider:  s.provider,
		Model:     s.model,
	}, nil
}
