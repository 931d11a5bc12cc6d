package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	APIKeyEnc    *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

func (u *User) HasAPIKey() bool {
	return u.APIKeyEnc != nil && *u.APIKeyEnc != ""
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateAPIKeyRequest sets the user's model API key. An empty key clears it.
type UpdateAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// UserSettings never carries the key itself.
type UserSettings struct {
	Username  string `json:"username"`
	APIKeySet bool   `json:"api_key_set"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}
