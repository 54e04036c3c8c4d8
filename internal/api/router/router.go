package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deliciasfueguinas/orderbot/internal/http/handlers"
	httpmiddleware "github.com/deliciasfueguinas/orderbot/internal/http/middleware"
	"github.com/deliciasfueguinas/orderbot/internal/payments"
	"github.com/deliciasfueguinas/orderbot/internal/realtime"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	PaymentWebhook  *payments.WebhookHandler
	WhatsAppHandler *handlers.WhatsAppHandler
	Hub             *realtime.Hub
	MetricsHandler  http.Handler
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.HealthCheck)

	if cfg.PaymentWebhook != nil {
		r.Post("/webhook", cfg.PaymentWebhook.ServeHTTP)
	}
	if cfg.WhatsAppHandler != nil {
		r.Route("/webhook/whatsapp", func(r chi.Router) {
			r.Get("/", cfg.WhatsAppHandler.Verify)
			r.Post("/", cfg.WhatsAppHandler.Receive)
		})
	}
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWS)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
