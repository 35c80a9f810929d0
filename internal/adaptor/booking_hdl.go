package adaptor

import (
	"net/http"

	"cinema-checkout/internal/dto/request"
	"cinema-checkout/internal/usecase"
	"cinema-checkout/pkg/utils"

	"go.uber.org/zap"
)

type BookingHandler struct {
	service  usecase.BookingService
	checkout usecase.CheckoutService
	log      *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, checkout usecase.CheckoutService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service:  service,
		checkout: checkout,
		log:      log.With(zap.String("handler", "booking")),
	}
}

// StartSession handles POST /api/booking-sessions (protected)
func (h *BookingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.StartSessionRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	session, err := h.service.StartSession(r.Context(), userID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "start session")
		return
	}

	utils.ResponseCreated(w, "success", session)
}

// GetSession handles GET /api/booking-sessions/{id} (protected)
func (h *BookingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	session, err := h.service.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, h.log, err, "get session")
		return
	}

	utils.ResponseSuccess(w, "success", session)
}

// HoldSeats handles POST /api/booking-sessions/{id}/seats (protected)
func (h *BookingHandler) HoldSeats(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	var req request.HoldSeatsRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	session, err := h.service.HoldSeats(r.Context(), userID, sessionID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "hold seats")
		return
	}

	utils.ResponseSuccess(w, "success", session)
}

// ReleaseSeat handles DELETE /api/booking-sessions/{id}/seats/{seatId} (protected)
func (h *BookingHandler) ReleaseSeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}
	seatID, ok := uuidParam(r, "seatId")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid seat ID", nil)
		return
	}

	session, err := h.service.ReleaseSeat(r.Context(), userID, sessionID, seatID)
	if err != nil {
		writeServiceError(w, h.log, err, "release seat")
		return
	}

	utils.ResponseSuccess(w, "success", session)
}

// UpsertCombos handles PUT /api/booking-sessions/{id}/combos (protected)
func (h *BookingHandler) UpsertCombos(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	var req request.UpsertCombosRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	session, err := h.service.UpsertCombos(r.Context(), userID, sessionID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "upsert combos")
		return
	}

	utils.ResponseSuccess(w, "success", session)
}

// PreviewPricing handles POST /api/booking-sessions/{id}/preview (protected).
// The body is optional; omit it to preview without a voucher.
func (h *BookingHandler) PreviewPricing(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	var req request.PreviewPricingRequest
	if err := decodeBody(r, &req, true); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	pricing, err := h.service.PreviewPricing(r.Context(), userID, sessionID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "preview pricing")
		return
	}

	utils.ResponseSuccess(w, "success", pricing)
}

// CreateCheckout handles POST /api/booking-sessions/{id}/checkout (protected)
func (h *BookingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	var req request.CreateCheckoutRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	checkout, err := h.checkout.CreateCheckout(r.Context(), userID, sessionID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "create checkout")
		return
	}

	utils.ResponseCreated(w, "success", checkout)
}

// CancelSession handles DELETE /api/booking-sessions/{id} (protected)
func (h *BookingHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}
	sessionID, ok := uuidParam(r, "id")
	if !ok {
		utils.ResponseBadRequest(w, "Invalid session ID", nil)
		return
	}

	if err := h.checkout.CancelSession(r.Context(), userID, sessionID); err != nil {
		writeServiceError(w, h.log, err, "cancel session")
		return
	}

	utils.ResponseSuccess(w, "success", nil)
}
