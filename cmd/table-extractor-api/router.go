// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/table-extractor/cmd/table-extractor-api/handlers"
	"github.com/spherical/table-extractor/cmd/table-extractor-api/middleware"
	"github.com/spherical/table-extractor/internal/app"
	"github.com/spherical/table-extractor/internal/observability"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, application *app.App) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"table-extractor"}`))
	})

	processHandler := handlers.NewProcessHandler(logger, application)
	r.Post("/process_image", processHandler.Process)

	return r
}
