package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/genqueue/internal/api"
	apiMiddleware "github.com/phrazzld/genqueue/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	jobHandler := api.NewJobHandler(app.controller)
	app.jobHandler = jobHandler
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	submitLimiter := apiMiddleware.NewSubmitLimiter(
		app.config.Server.SubmitRateLimit,
		app.config.Server.SubmitRateBurst,
	)

	r.Route("/api", func(r chi.Router) {
		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.With(submitLimiter.Limit).Post("/jobs", jobHandler.CreateJob)
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/watch", jobHandler.WatchJobs)
			r.Get("/jobs/{id}", jobHandler.GetJob)
			r.Delete("/jobs/{id}", jobHandler.CancelJob)

			r.With(submitLimiter.Limit).Post("/jobs/direct", jobHandler.ExecuteDirect)
			r.Get("/jobs/direct/status", jobHandler.DirectStatus)
		})
	})

	r.Get("/health", jobHandler.Health)

	return r
}
