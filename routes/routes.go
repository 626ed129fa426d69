package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/classics-lab/scriptorium/app"
	"github.com/classics-lab/scriptorium/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Completions against slow local models can run for minutes
	r.Use(middleware.Timeout(deps.Config.Server.WriteTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Libraries)
	authHandler := handlers.NewAuthHandler(deps.Config, deps.AuthMiddleware, deps.Logger)
	llmHandler := handlers.NewLLMHandler(deps.Libraries, deps.Logger)
	usageHandler := handlers.NewUsageHandler(deps.Libraries, deps.Logger)
	draftHandler := handlers.NewDraftHandler(deps.Libraries, deps.Logger)
	libraryHandler := handlers.NewLibraryHandler(deps.Libraries, deps.Logger)

	// Health check endpoint
	r.Get("/healthz", healthHandler.HandleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", authHandler.HandleIssueToken)

		r.Route("/llm", func(r chi.Router) {
			// Probe endpoints stay public so the frontend can render
			// provider status without a session.
			r.Get("/status", llmHandler.HandleStatus)
			r.Get("/models", llmHandler.HandleModels)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Post("/call", llmHandler.HandleCall)
				r.Post("/call-image", llmHandler.HandleCallWithImage)
				r.Post("/compare", llmHandler.HandleCompare)
			})
		})

		r.Route("/usage", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/summary", usageHandler.HandleSummary)
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", draftHandler.HandleList)
			r.Post("/", draftHandler.HandleCreate)
			r.Post("/{id}/accept", draftHandler.HandleAccept)
			r.Post("/{id}/modify", draftHandler.HandleModify)
			r.Post("/{id}/reject", draftHandler.HandleReject)
		})

		r.Route("/library", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", libraryHandler.HandleCurrent)
			r.Post("/switch", libraryHandler.HandleSwitch)
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
