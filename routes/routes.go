package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/uxtrace/uxtrace/app"
	"github.com/uxtrace/uxtrace/handlers"
)

// SetupRoutes configures all collector routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS: the ingest endpoint is called cross-origin from every
	// instrumented page, so origins default wide open.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingest endpoint is public: recorders carry no credentials
		r.Post("/events", handlers.IngestEventsHandler(deps))

		// Session read/delete endpoints (require authentication when
		// a read API secret is configured)
		r.Route("/sessions", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", handlers.ListSessionsHandler(deps))
			r.Get("/{id}", handlers.GetSessionHandler(deps))
			r.Delete("/{id}", handlers.DeleteSessionHandler(deps))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
