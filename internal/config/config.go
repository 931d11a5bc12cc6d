package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL     string
	MigrationsDir   string
	DatabaseMaxConn int

	// Redis
	RedisURL string

	// Auth
	JWTSecret string

	// EncryptionKey protects stored user API keys (base64url, 32 bytes).
	EncryptionKey string

	// Model provider
	LLMProvider        string
	LLMModel           string
	LLMMaxAttempts     int
	LLMRetryDelay      time.Duration
	LLMValidationDelay time.Duration

	// Test generation
	MaxSourceChars int
	WorkerCount    int

	// Rate limits per minute. Auth is per IP, the model-backed endpoints per user.
	AuthRateLimit     int
	GenerateRateLimit int
	AssistRateLimit   int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		DatabaseMaxConn:    getEnvAsIntOrDefault("DATABASE_MAX_CONNS", 25),
		RedisURL:           mustGetEnv("REDIS_URL"),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		EncryptionKey:      mustGetEnv("ENCRYPTION_KEY"),
		LLMProvider:        strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "openai")),
		LLMModel:           getEnvOrDefault("LLM_MODEL", ""),
		LLMMaxAttempts:     getEnvAsIntOrDefault("LLM_MAX_ATTEMPTS", 3),
		LLMRetryDelay:      getEnvAsDurationOrDefault("LLM_RETRY_DELAY", 5*time.Second),
		LLMValidationDelay: getEnvAsDurationOrDefault("LLM_VALIDATION_DELAY", 2*time.Second),
		MaxSourceChars:     getEnvAsIntOrDefault("MAX_SOURCE_CHARS", 8000),
		WorkerCount:        getEnvAsIntOrDefault("WORKER_COUNT", 3),
		AuthRateLimit:      getEnvAsIntOrDefault("AUTH_RATE_LIMIT", 10),
		GenerateRateLimit:  getEnvAsIntOrDefault("GENERATE_RATE_LIMIT", 5),
		AssistRateLimit:    getEnvAsIntOrDefault("ASSIST_RATE_LIMIT", 30),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go durations ("5s") or a bare number of
// seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return defaultVal
}
