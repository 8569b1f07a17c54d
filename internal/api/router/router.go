// Package router wires the HTTP surface: webhook intake, flow authoring,
// health, and metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/resaflow/platform/internal/http/handlers"
	httpmiddleware "github.com/resaflow/platform/internal/http/middleware"
	"github.com/resaflow/platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	ChatWebhook    *handlers.ChatWebhookHandler
	ReviewRating   *handlers.ReviewRatingHandler
	FlowHandler    *handlers.FlowHandler
	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.ChatWebhook != nil {
		r.Post("/webhooks/chat", cfg.ChatWebhook.Handle)
	}
	if cfg.ReviewRating != nil {
		r.Post("/webhooks/review-rating", cfg.ReviewRating.Handle)
	}
	if cfg.FlowHandler != nil {
		r.Route("/accounts/{accountID}/flows", func(r chi.Router) {
			r.Post("/lint", cfg.FlowHandler.Lint)
			r.Route("/{flowID}", func(r chi.Router) {
				r.Put("/", cfg.FlowHandler.Upsert)
				r.Get("/", cfg.FlowHandler.Get)
			})
		})
	}

	return r
}
