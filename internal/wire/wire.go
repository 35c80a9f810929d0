// internal/wire/wire.go
package wire

import (
	"net/http"

	"cinema-checkout/internal/adaptor"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/internal/notification"
	"cinema-checkout/internal/usecase"
	"cinema-checkout/pkg/middleware"
	"cinema-checkout/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// App holds the wired router and the background jobs main has to run.
type App struct {
	Router    *chi.Mux
	Scheduler *usecase.ExpiryScheduler
}

// Wiring builds services, handlers and routes.
func Wiring(
	repo *repository.Repository,
	gateways gateway.Registry,
	notifier notification.Notifier,
	config *utils.Config,
	logger *zap.Logger,
	opts ...usecase.Option,
) *App {
	service := usecase.NewService(repo, gateways, notifier, config, logger, opts...)
	handler := adaptor.NewHandler(service, config, logger)

	router := setupRouter(handler, repo, gateways, config, logger)

	return &App{
		Router:    router,
		Scheduler: usecase.NewExpiryScheduler(service.Checkout, config.Booking.SweepInterval, logger),
	}
}

func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	gateways gateway.Registry,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.App.AllowedOrigins))

	wireBooking(r, handler.Booking, repo, logger)
	wirePayment(r, handler.Payment, repo, gateways, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
