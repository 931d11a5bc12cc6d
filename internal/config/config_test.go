package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"parses duration", "TEST_DUR_1", "750ms", time.Second, 750 * time.Millisecond},
		{"parses bare seconds", "TEST_DUR_2", "5", time.Second, 5 * time.Second},
		{"parses fractional seconds", "TEST_DUR_3", "0.5", time.Second, 500 * time.Millisecond},
		{"uses default for empty", "TEST_DUR_4", "", 2 * time.Second, 2 * time.Second},
		{"uses default for garbage", "TEST_DUR_5", "soon", 2 * time.Second, 2 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsDurationOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quiz")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", "key")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_MAX_ATTEMPTS", "")
	t.Setenv("MAX_SOURCE_CHARS", "")

	cfg := Load()

	if cfg.LLMProvider != "gemini" {
		t.Errorf("Expected provider to be lower-cased, got %q", cfg.LLMProvider)
	}
	if cfg.LLMMaxAttempts != 3 {
		t.Errorf("Expected 3 attempts by default, got %d", cfg.LLMMaxAttempts)
	}
	if cfg.MaxSourceChars != 8000 {
		t.Errorf("Expected 8000 source chars by default, got %d", cfg.MaxSourceChars)
	}
	if cfg.LLMRetryDelay != 5*time.Second || cfg.LLMValidationDelay != 2*time.Second {
		t.Errorf("Unexpected delays %v / %v", cfg.LLMRetryDelay, cfg.LLMValidationDelay)
	}
}

func TestLoad_PanicsWithoutEncryptionKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quiz")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", "")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when ENCRYPTION_KEY is missing")
		}
	}()
	Load()
}
