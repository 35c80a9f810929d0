package adaptor

import (
	"io"
	"net/http"
	"time"

	"cinema-checkout/internal/usecase"
	"cinema-checkout/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	service      usecase.CheckoutService
	pollInterval time.Duration
	pollAttempts int
	log          *zap.Logger
}

func NewPaymentHandler(service usecase.CheckoutService, cfg utils.BookingConfig, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:      service,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollMaxAttempts,
		log:          log.With(zap.String("handler", "payment")),
	}
}

// GetStatus handles GET /api/payments/{orderId}/status (protected)
func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		utils.ResponseBadRequest(w, "Order ID is required", nil)
		return
	}

	status, err := h.service.PollPaymentStatus(r.Context(), userID, orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "poll payment status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// Await handles GET /api/payments/{orderId}/await (protected). It long-polls
// the provider until the order settles or the attempts run out.
func (h *PaymentHandler) Await(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		utils.ResponseBadRequest(w, "Order ID is required", nil)
		return
	}

	status, err := h.service.AwaitPayment(r.Context(), userID, orderID, h.pollInterval, h.pollAttempts)
	if err != nil {
		writeServiceError(w, h.log, err, "await payment")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// Webhook handles POST /api/payments/<provider>/webhook (public, signature checked)
func (h *PaymentHandler) Webhook(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			utils.ResponseBadRequest(w, "Invalid request body", nil)
			return
		}

		if err := h.service.HandleWebhook(r.Context(), provider, body); err != nil {
			writeServiceError(w, h.log, err, provider+" webhook")
			return
		}

		utils.ResponseSuccess(w, "success", nil)
	}
}
