package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"quizforge-backend/internal/config"
	"quizforge-backend/internal/database"
	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/quiz"
	"quizforge-backend/internal/repository"
	"quizforge-backend/internal/router"
	"quizforge-backend/internal/secrets"
	"quizforge-backend/internal/services"
	"quizforge-backend/internal/websocket"
	"quizforge-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting QuizForge Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, cfg.DatabaseMaxConn)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Load API Key Encryption ────
	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		var cfgErr *secrets.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatalf("✗ ENCRYPTION_KEY is invalid: %v", cfgErr)
		}
		log.Fatalf("✗ Cipher initialization failed: %v", err)
	}
	log.Println("✓ API key encryption ready")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	quizStore := repository.NewQuizStore(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth)
	modelFactory := services.NewModelFactory(userRepo, cipher, services.ModelConfig{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		MaxAttempts:     cfg.LLMMaxAttempts,
		RetryDelay:      cfg.LLMRetryDelay,
		ValidationDelay: cfg.LLMValidationDelay,
	})
	log.Printf("✓ Model provider: %s (%s)", modelFactory.Provider(), modelFactory.Model())
	settingsService := services.NewSettingsService(userRepo, cipher, modelFactory.Provider(), modelFactory.Model())
	themeService := services.NewThemeService(redisClients.Queue, modelFactory)
	publisher := services.NewPublisher(redisClients.Queue)
	engine := quiz.NewEngine(quizStore)

	// ──── Step 6: Start Job Worker Pool ────
	generators := func(ctx context.Context, userID uuid.UUID) (worker.QuestionGenerator, error) {
		gen, err := modelFactory.ForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
	workerPool := worker.NewPool(
		redisClients.Queue,
		jobRepo,
		quizStore,
		generators,
		publisher,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, services.UserUpdatesChannel, cfg.FrontendURL)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	testHandler := handlers.NewTestHandler(quizStore, jobRepo, workerPool, services.NewFileExtractService(), cfg.MaxSourceChars)
	attemptHandler := handlers.NewAttemptHandler(engine, modelFactory)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	themeHandler := handlers.NewThemeHandler(themeService)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		middleware.NewRedisCounter(redisClients.Queue),
		router.Limits{
			Auth:     cfg.AuthRateLimit,
			Generate: cfg.GenerateRateLimit,
			Assist:   cfg.AssistRateLimit,
		},
		authHandler,
		testHandler,
		attemptHandler,
		settingsHandler,
		themeHandler,
		jobHandler,
		wsHub,
		cfg.FrontendURL,
	)

	// Answer submission and hints wait on the model, retries included.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ QuizForge Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
