package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	mW "github.com/sitecraft/backend/internal/middleware"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig carries the router's collaborators. AllowCredentials is honoured
// only with an explicit origin list; Health reports whether the backing stores
// are reachable.
type RouterConfig struct {
	Identity         mW.IdentityProvider
	Authorizer       services.Authorizer
	Logger           zerolog.Logger
	AllowedOrigins   []string
	AllowCredentials bool
	RequestTimeout   time.Duration
	Health           func(ctx context.Context) error
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
		cfg.AllowCredentials = false
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(mW.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				services.SendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		services.SendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Get("/pricing", h.ListPricing)
		r.Post("/webhooks/card", h.CardWebhook)
		r.Post("/webhooks/crypto", h.CryptoWebhook)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.Authenticate(cfg.Identity))

			r.Post("/accounts/signup", h.Signup)

			r.Get("/credits/balance", h.GetBalance)
			r.Get("/credits/history", h.GetHistory)

			r.Post("/payments", h.CreatePayment)
			r.Get("/payments", h.ListPayments)
			r.Get("/payments/{txId}", h.GetPayment)
			r.Get("/payments/{txId}/qr", h.PaymentQR)
			r.Post("/payments/{txId}/proof", h.SubmitProof)

			r.Post("/generate", h.Generate)

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(mW.RequireCapability(cfg.Authorizer, models.CapManagePayments))
					r.Post("/payments/{txId}/fail", h.FailPayment)
					r.Post("/payments/{txId}/refund", h.RefundPayment)
					r.Post("/payments/{txId}/settle", h.SettlePayment)
					r.Get("/anomalies", h.ListAnomalies)
				})
				r.With(mW.RequireCapability(cfg.Authorizer, models.CapManagePricing)).
					Put("/pricing/{tier}", h.UpdatePricing)
				r.Group(func(r chi.Router) {
					r.Use(mW.RequireCapability(cfg.Authorizer, models.CapManageCapacity))
					r.Get("/capacity", h.GetCapacity)
					r.Put("/capacity", h.UpdateCapacity)
				})
				r.With(mW.RequireCapability(cfg.Authorizer, models.CapViewAudit)).
					Get("/accounts/{accountId}/audit", h.AccountAudit)
			})
		})
	})

	return r
}
