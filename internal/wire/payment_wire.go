package wire

import (
	"cinema-checkout/internal/adaptor"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	repo *repository.Repository,
	gateways gateway.Registry,
	log *zap.Logger,
) {
	r.Route("/api/payments", func(r chi.Router) {
		// ==================== PUBLIC ROUTES ====================
		// Providers authenticate with a body signature, not a session token.
		for provider := range gateways {
			r.Post("/"+provider+"/webhook", paymentHandler.Webhook(provider))
		}

		// ==================== PROTECTED ROUTES ====================
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthSession(repo.Session, log))

			// GET /api/payments/{orderId}/status - One gateway lookup
			r.Get("/{orderId}/status", paymentHandler.GetStatus)

			// GET /api/payments/{orderId}/await - Poll until settled
			r.Get("/{orderId}/await", paymentHandler.Await)
		})
	})
}
