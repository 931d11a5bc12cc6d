package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/websocket"
)

// Limits are requests per minute.
type Limits struct {
	Auth     int
	Generate int
	Assist   int
}

func New(
	jwtAuth *middleware.JWTAuth,
	counter middleware.Counter,
	limits Limits,
	authHandler *handlers.AuthHandler,
	testHandler *handlers.TestHandler,
	attemptHandler *handlers.AttemptHandler,
	settingsHandler *handlers.SettingsHandler,
	themeHandler *handlers.ThemeHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	authLimiter := middleware.NewRateLimiter(counter, "auth", limits.Auth, time.Minute)
	generateLimiter := middleware.NewRateLimiter(counter, "generate", limits.Generate, time.Minute)
	assistLimiter := middleware.NewRateLimiter(counter, "assist", limits.Assist, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Test Routes ────
		r.Route("/tests", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", testHandler.List)
			r.With(generateLimiter.Middleware).Post("/generate", testHandler.Generate)
			r.Get("/{id}", testHandler.Get)
			r.Delete("/{id}", testHandler.Delete)
			r.Post("/{id}/attempts", attemptHandler.Start)
		})

		// ──── Attempt Routes ────
		r.Route("/attempts", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", attemptHandler.Get)
			r.Get("/{id}/results", attemptHandler.Results)
			r.Get("/{id}/questions/{index}", attemptHandler.Question)
			r.With(assistLimiter.Middleware).Post("/{id}/questions/{index}/answer", attemptHandler.Submit)
		})

		r.Route("/questions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(assistLimiter.Middleware).Post("/{id}/hint", attemptHandler.Hint)
		})

		// ──── User & Settings Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/settings", settingsHandler.GetSettings)
			r.Put("/api-key", settingsHandler.UpdateAPIKey)
		})

		// ──── Theme Routes ────
		r.Route("/theme", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", themeHandler.Get)
			r.Get("/theme.css", themeHandler.Stylesheet)
			r.With(assistLimiter.Middleware).Post("/", themeHandler.Generate)
			r.Delete("/", themeHandler.Clear)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
