package usecase

import (
	"time"

	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/internal/notification"
	"cinema-checkout/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Booking  BookingService
	Checkout CheckoutService
}

type Option func(*sessionCore)

// WithClock replaces time.Now for every time-dependent decision.
func WithClock(now func() time.Time) Option {
	return func(c *sessionCore) {
		c.now = now
	}
}

func NewService(repo *repository.Repository, gateways gateway.Registry, notifier notification.Notifier, config *utils.Config, log *zap.Logger, opts ...Option) *Service {
	core := newSessionCore(repo, config.Booking, log)
	for _, opt := range opts {
		opt(core)
	}

	return &Service{
		Booking:  NewBookingService(core, log),
		Checkout: NewCheckoutService(core, gateways, notifier, config.PayOS, log),
	}
}
