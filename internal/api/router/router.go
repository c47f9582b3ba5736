// Package router assembles the HTTP surface: the webhook ingress, admin
// reads, health, and metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/palinopr/ghl-lead-agent/internal/http/handlers"
	httpmiddleware "github.com/palinopr/ghl-lead-agent/internal/http/middleware"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	WebhookHandler  *handlers.WebhookHandler
	AdminHandler    *handlers.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WebhookHandler != nil {
		r.Post("/webhooks/ghl", cfg.WebhookHandler.Handle)
	}

	if cfg.AdminHandler != nil {
		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/admin/conversations/{key}", cfg.AdminHandler.GetSnapshot)
			admin.Post("/admin/conversations/{key}/requeue", cfg.AdminHandler.Requeue)
		})
	}

	return r
}
