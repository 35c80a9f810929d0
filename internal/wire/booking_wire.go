package wire

import (
	"cinema-checkout/internal/adaptor"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.Route("/api/booking-sessions", func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		// POST /api/booking-sessions - Start a booking for a showtime
		r.Post("/", bookingHandler.StartSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", bookingHandler.GetSession)
			r.Delete("/", bookingHandler.CancelSession)

			// Seat holds
			r.Post("/seats", bookingHandler.HoldSeats)
			r.Delete("/seats/{seatId}", bookingHandler.ReleaseSeat)

			// Cart and checkout
			r.Put("/combos", bookingHandler.UpsertCombos)
			r.Post("/preview", bookingHandler.PreviewPricing)
			r.Post("/checkout", bookingHandler.CreateCheckout)
		})
	})
}
