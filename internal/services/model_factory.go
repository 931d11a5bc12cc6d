package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
	"quizforge-backend/internal/secrets"
)

const missingKeyMessage = "Set your API key in settings before using AI features"

// ModelConfig selects the provider and retry behaviour for every per-user
// client.
type ModelConfig struct {
	Provider        string
	Model           string
	MaxAttempts     int
	RetryDelay      time.Duration
	ValidationDelay time.Duration
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ModelFactory builds a fresh model client from a user's own stored API key.
// Clients are never shared between users.
type ModelFactory struct {
	users      userLookup
	cipher     *secrets.Cipher
	cfg        ModelConfig
	newBackend func(ctx context.Context, provider, apiKey string) (llm.Backend, error)
}

func NewModelFactory(users userLookup, cipher *secrets.Cipher, cfg ModelConfig) *ModelFactory {
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel(cfg.Provider)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = llm.DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = llm.DefaultRetryDelay
	}
	if cfg.ValidationDelay <= 0 {
		cfg.ValidationDelay = llm.DefaultValidationDelay
	}
	return &ModelFactory{
		users:      users,
		cipher:     cipher,
		cfg:        cfg,
		newBackend: llm.NewBackend,
	}
}

func (f *ModelFactory) Provider() string { return f.cfg.Provider }

func (f *ModelFactory) Model() string { return f.cfg.Model }

// ForUser returns a Generator bound to the user's decrypted key. The caller
// closes it.
func (f *ModelFactory) ForUser(ctx context.Context, userID uuid.UUID) (*llm.Generator, error) {
	user, err := f.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	if !user.HasAPIKey() {
		return nil, &ForbiddenError{Message: missingKeyMessage}
	}

	apiKey, err := f.cipher.Decrypt(*user.APIKeyEnc)
	if err != nil {
		return nil, &ForbiddenError{Message: "Your stored API key could not be read. Please enter it again in settings."}
	}

	backend, err := f.newBackend(ctx, f.cfg.Provider, apiKey)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", f.cfg.Provider, err)
	}

	client := llm.NewClient(backend, f.cfg.Model,
		llm.WithRetryDelay(f.cfg.RetryDelay),
		llm.WithValidationDelay(f.cfg.ValidationDelay),
	)
	return llm.NewGenerator(client, f.cfg.MaxAttempts), nil
}

// AssistantSource adapts ForUser for the attempt engine, which only builds a
// client when it actually needs one.
func (f *ModelFactory) AssistantSource(userID uuid.UUID) quiz.AssistantSource {
	return func(ctx context.Context) (quiz.Assistant, error) {
		gen, err := f.ForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
}
