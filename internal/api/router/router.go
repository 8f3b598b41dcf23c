// Package router assembles the HTTP surface: the WhatsApp webhook, health
// check, and Prometheus metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dental-ai-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-ai-assistant/internal/http/middleware"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	WhatsAppWebhook *handlers.WhatsAppWebhookHandler
	MetricsHandler  http.Handler
	WebhookRate     float64
	WebhookBurst    int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.HealthCheck)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	if cfg.WhatsAppWebhook != nil {
		rate, burst := cfg.WebhookRate, cfg.WebhookBurst
		if rate <= 0 {
			rate = 10
		}
		if burst <= 0 {
			burst = 30
		}
		r.With(httpmiddleware.RateLimit(rate, burst)).
			Post("/webhook", cfg.WhatsAppWebhook.Handle)
	}

	return r
}
