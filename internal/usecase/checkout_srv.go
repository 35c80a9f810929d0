package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/dto/request"
	"cinema-checkout/internal/dto/response"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/internal/notification"
	"cinema-checkout/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutService interface {
	CreateCheckout(ctx context.Context, customerID, sessionID uuid.UUID, req *request.CreateCheckoutRequest) (*response.CheckoutResponse, error)
	CancelSession(ctx context.Context, customerID, sessionID uuid.UUID) error

	// Payment status
	PollPaymentStatus(ctx context.Context, customerID uuid.UUID, orderID string) (*response.PaymentStatusResponse, error)
	AwaitPayment(ctx context.Context, customerID uuid.UUID, orderID string, interval time.Duration, maxAttempts int) (*response.PaymentStatusResponse, error)
	HandleWebhook(ctx context.Context, provider string, body []byte) error

	// Background expiry
	ExpireDue(ctx context.Context) (int, error)
}

type checkoutService struct {
	*sessionCore
	gateways  gateway.Registry
	notifier  notification.Notifier
	returnURL string
	cancelURL string
	log       *zap.Logger
}

func NewCheckoutService(core *sessionCore, gateways gateway.Registry, notifier notification.Notifier, payos utils.PayOSConfig, log *zap.Logger) CheckoutService {
	return &checkoutService{
		sessionCore: core,
		gateways:    gateways,
		notifier:    notifier,
		returnURL:   payos.ReturnURL,
		cancelURL:   payos.CancelURL,
		log:         log.With(zap.String("service", "checkout")),
	}
}

// CreateCheckout opens a payment order for a previewed session. Retrying on a
// session already awaiting payment returns the existing order.
func (s *checkoutService) CreateCheckout(ctx context.Context, customerID, sessionID uuid.UUID, req *request.CreateCheckoutRequest) (*response.CheckoutResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create checkout validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == entity.SessionStateAwaitingPayment {
		return s.existingCheckout(ctx, session)
	}
	if err := s.ensureOpen(ctx, session); err != nil {
		return nil, err
	}
	if session.State != entity.SessionStatePricingPreviewed || session.Pricing == nil {
		return nil, invalidState("preview pricing before checkout")
	}

	now := s.now()
	if now.Sub(session.Pricing.CreatedAt) > s.cfg.PreviewStaleness {
		return nil, staleError("pricing preview is out of date, preview again")
	}
	if err := s.verifySeatsOwned(ctx, session); err != nil {
		return nil, err
	}
	if code := session.Pricing.AppliedVoucherCode; code != nil {
		order := OrderContext{Subtotal: session.Pricing.Subtotal(), Now: now}
		if _, err := s.voucher.Validate(ctx, *code, order); err != nil {
			return nil, err
		}
	}

	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return nil, validationError(map[string]string{"Provider": "Unsupported payment provider"})
	}

	returnURL, cancelURL := req.ReturnURL, req.CancelURL
	if returnURL == "" {
		returnURL = s.returnURL
	}
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	order, err := gw.CreateOrder(callCtx, gateway.CreateOrderRequest{
		SessionID:   session.ID,
		Amount:      session.Pricing.Total,
		Description: "CINEMA " + session.ID.String()[:8],
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
		ExpiresAt:   session.ExpiresAt,
	})
	cancel()
	if err != nil {
		s.log.Error("Payment order creation failed",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
			zap.String("provider", req.Provider),
		)
		return nil, gatewayUnavailable(err)
	}

	charged := session.Pricing.Total
	session.OrderID = &order.OrderID
	session.Provider = &req.Provider
	session.State = entity.SessionStateAwaitingPayment
	if err := s.repo.BookingSession.Update(ctx, session); err != nil {
		// The gateway order is not attached to the session; cancel it.
		s.expireOrderQuietly(ctx, gw, order.OrderID)
		if !errors.Is(err, repository.ErrStaleWrite) {
			return nil, fmt.Errorf("attach order %s to session %s: %w", order.OrderID, session.ID, err)
		}

		current, err := s.load(ctx, uuid.Nil, session.ID)
		if err != nil {
			return nil, err
		}
		if current.State == entity.SessionStateAwaitingPayment && current.OrderID != nil {
			return s.existingCheckout(ctx, current)
		}
		s.log.Warn("Booking session changed during checkout",
			zap.String("session_id", session.ID.String()),
			zap.String("order_id", order.OrderID),
			zap.String("state", current.State.String()),
		)
		return nil, staleError("booking session changed during checkout, preview the price again")
	}

	paymentOrder := &entity.PaymentOrder{
		OrderID:     order.OrderID,
		SessionID:   session.ID,
		Provider:    req.Provider,
		Amount:      charged,
		Status:      entity.PaymentStatusPending,
		CheckoutURL: order.CheckoutURL,
		QRPayload:   order.QRPayload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.PaymentOrder.Create(ctx, paymentOrder); err != nil {
		s.log.Error("Failed to record payment order", zap.Error(err), zap.String("order_id", order.OrderID))
	}

	s.log.Info("Checkout created",
		zap.String("session_id", session.ID.String()),
		zap.String("order_id", order.OrderID),
		zap.Int64("amount", paymentOrder.Amount),
	)

	return response.PaymentOrderToCheckoutResponse(paymentOrder), nil
}

func (s *checkoutService) existingCheckout(ctx context.Context, session *entity.BookingSession) (*response.CheckoutResponse, error) {
	order, err := s.repo.PaymentOrder.FindByOrderID(ctx, *session.OrderID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return response.PaymentOrderToCheckoutResponse(order), nil
	}

	resp := &response.CheckoutResponse{
		OrderID: *session.OrderID,
		Amount:  session.Pricing.Total,
		Status:  entity.PaymentStatusPending,
	}
	if session.Provider != nil {
		resp.Provider = *session.Provider
	}
	return resp, nil
}

// orderAmount is what the gateway was asked to charge for the session's order.
func (s *checkoutService) orderAmount(ctx context.Context, session *entity.BookingSession) (int64, error) {
	order, err := s.repo.PaymentOrder.FindByOrderID(ctx, *session.OrderID)
	if err != nil {
		return 0, err
	}
	if order != nil {
		return order.Amount, nil
	}
	if session.Pricing == nil {
		return 0, invalidState("booking session has no price")
	}
	return session.Pricing.Total, nil
}

// CancelSession is idempotent for sessions that already ended without payment.
func (s *checkoutService) CancelSession(ctx context.Context, customerID, sessionID uuid.UUID) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return err
	}

	switch session.State {
	case entity.SessionStateCancelled, entity.SessionStateExpired:
		return nil
	case entity.SessionStatePaid:
		return invalidState("paid bookings cannot be cancelled")
	}

	if session.State == entity.SessionStateAwaitingPayment {
		// A payment that already went through wins over the cancel.
		if status, err := s.gatewayStatus(ctx, session); err == nil && status == entity.PaymentStatusPaid {
			if err := s.markPaid(ctx, session); err != nil {
				return err
			}
			return invalidState("booking was already paid")
		}
	}

	wasAwaiting := session.State == entity.SessionStateAwaitingPayment
	if _, err := s.terminate(ctx, session, entity.SessionStateCancelled); err != nil {
		return err
	}
	if session.State == entity.SessionStatePaid {
		return invalidState("booking was already paid")
	}

	if wasAwaiting {
		s.closeOrder(ctx, session, entity.PaymentStatusCancelled)
	}
	return nil
}

func (s *checkoutService) PollPaymentStatus(ctx context.Context, customerID uuid.UUID, orderID string) (*response.PaymentStatusResponse, error) {
	found, err := s.repo.BookingSession.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find session for order %s: %w", orderID, err)
	}
	if found == nil || (customerID != uuid.Nil && found.CustomerID != customerID) {
		return nil, notFound("payment order not found")
	}

	unlock := s.locks.lock(found.ID)
	defer unlock()

	session, err := s.load(ctx, uuid.Nil, found.ID)
	if err != nil {
		return nil, err
	}

	if session.State.IsTerminal() {
		return statusResponse(orderID, localStatus(session.State), session), nil
	}

	status, err := s.gatewayStatus(ctx, session)
	if err != nil {
		return nil, gatewayUnavailable(err)
	}

	status, err = s.applyStatus(ctx, session, status)
	if err != nil {
		return nil, err
	}

	return statusResponse(orderID, status, session), nil
}

// AwaitPayment polls until the order settles or maxAttempts runs out. Gateway
// outages count as an attempt and are retried.
func (s *checkoutService) AwaitPayment(ctx context.Context, customerID uuid.UUID, orderID string, interval time.Duration, maxAttempts int) (*response.PaymentStatusResponse, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		last    *response.PaymentStatusResponse
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := s.PollPaymentStatus(ctx, customerID, orderID)
		switch {
		case err == nil:
			last, lastErr = resp, nil
			if resp.Status.IsTerminal() {
				return resp, nil
			}
		case KindOf(err) == KindGatewayUnavailable:
			lastErr = err
		default:
			return nil, err
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			if last != nil {
				return last, nil
			}
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	if last == nil {
		return nil, lastErr
	}
	return last, nil
}

func (s *checkoutService) HandleWebhook(ctx context.Context, provider string, body []byte) error {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return notFound("unknown payment provider")
	}
	verifier, ok := gw.(gateway.WebhookVerifier)
	if !ok {
		return notFound("provider does not support webhooks")
	}

	event, err := verifier.VerifyWebhook(body)
	if err != nil {
		s.log.Warn("Webhook rejected", zap.Error(err), zap.String("provider", provider))
		return validationError(map[string]string{"Signature": "Invalid webhook payload"})
	}

	found, err := s.repo.BookingSession.FindByOrderID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("find session for order %s: %w", event.OrderID, err)
	}
	if found == nil {
		s.log.Warn("Webhook for unknown order", zap.String("order_id", event.OrderID))
		return nil
	}
	if event.Status != entity.PaymentStatusPaid {
		return nil
	}
	if event.Amount > 0 {
		expected, err := s.orderAmount(ctx, found)
		if err != nil {
			return err
		}
		if event.Amount != expected {
			s.log.Error("Webhook amount does not match payment order",
				zap.String("order_id", event.OrderID),
				zap.String("session_id", found.ID.String()),
				zap.Int64("expected", expected),
				zap.Int64("received", event.Amount),
			)
			return validationError(map[string]string{"Amount": "Paid amount does not match the order"})
		}
	}

	unlock := s.locks.lock(found.ID)
	defer unlock()

	session, err := s.load(ctx, uuid.Nil, found.ID)
	if err != nil {
		return err
	}
	if _, err := s.applyStatus(ctx, session, event.Status); err != nil {
		// The provider retries until acked; a closed session will not change.
		if KindOf(err) == KindInvalidState {
			return nil
		}
		return err
	}
	return nil
}

// ExpireDue drives sessions past their deadline to Expired. For sessions
// awaiting payment the gateway is asked first, and a PAID order wins.
func (s *checkoutService) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.BookingSession.FindExpired(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find expired sessions: %w", err)
	}

	expired := 0
	for _, candidate := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := s.expireOne(ctx, candidate.ID)
		if err != nil {
			s.log.Error("Failed to expire session", zap.Error(err), zap.String("session_id", candidate.ID.String()))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *checkoutService) expireOne(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, uuid.Nil, sessionID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if session.State.IsTerminal() || !session.IsExpiredAt(now) {
		return false, nil
	}

	if session.State != entity.SessionStateAwaitingPayment {
		return s.terminate(ctx, session, entity.SessionStateExpired)
	}

	status, err := s.gatewayStatus(ctx, session)
	if err != nil {
		// Give the gateway until the hold grace runs out before giving up on it.
		if now.Before(session.ExpiresAt.Add(s.cfg.HoldGrace)) {
			return false, fmt.Errorf("check payment before expiry: %w", err)
		}
		s.log.Warn("Expiring session without gateway confirmation",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
		)
		status = entity.PaymentStatusPending
	}

	status, err = s.applyStatus(ctx, session, status)
	if err != nil {
		return false, err
	}
	return status == entity.PaymentStatusExpired && session.State == entity.SessionStateExpired, nil
}

// applyStatus folds a gateway status into the session and returns the status
// the caller should report.
func (s *checkoutService) applyStatus(ctx context.Context, session *entity.BookingSession, status entity.PaymentStatus) (entity.PaymentStatus, error) {
	switch status {
	case entity.PaymentStatusPaid:
		return status, s.markPaid(ctx, session)

	case entity.PaymentStatusExpired, entity.PaymentStatusCancelled:
		next := entity.SessionStateExpired
		if status == entity.PaymentStatusCancelled {
			next = entity.SessionStateCancelled
		}
		if _, err := s.terminate(ctx, session, next); err != nil {
			return status, err
		}
		s.recordOrderStatus(ctx, session, status)
		return status, nil

	default:
		if !session.IsExpiredAt(s.now()) {
			return status, nil
		}
		applied, err := s.terminate(ctx, session, entity.SessionStateExpired)
		if err != nil {
			return status, err
		}
		if applied {
			s.closeOrder(ctx, session, entity.PaymentStatusExpired)
		}
		return localStatus(session.State), nil
	}
}

// markPaid applies the Paid effects exactly once: only the writer whose
// compare-and-swap lands runs them.
func (s *checkoutService) markPaid(ctx context.Context, session *entity.BookingSession) error {
	if session.State == entity.SessionStatePaid {
		return nil
	}
	if session.State.IsTerminal() {
		s.log.Error("Payment received for a closed session, refund required",
			zap.String("session_id", session.ID.String()),
			zap.String("state", session.State.String()),
		)
		return invalidState(fmt.Sprintf("payment received for %s session", session.State))
	}

	applied, err := s.transition(ctx, session, entity.SessionStatePaid)
	if err != nil || !applied {
		return err
	}

	if session.Pricing != nil && session.Pricing.AppliedVoucherCode != nil {
		if err := s.repo.Voucher.IncrementUsage(ctx, *session.Pricing.AppliedVoucherCode); err != nil {
			s.log.Error("Failed to count voucher usage",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
				zap.String("voucher", *session.Pricing.AppliedVoucherCode),
			)
		}
	}

	now := s.now()
	allocations := make([]entity.SeatAllocation, len(session.SeatHolds))
	for i, hold := range session.SeatHolds {
		key := repository.SeatKey(session.ShowtimeID, hold.SeatID)
		if err := s.repo.Reservation.Commit(ctx, key, session.ID); err != nil {
			s.log.Error("Failed to commit seat hold",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
				zap.String("seat_id", hold.SeatID.String()),
			)
		}
		allocations[i] = entity.SeatAllocation{
			ShowtimeID: session.ShowtimeID,
			SeatID:     hold.SeatID,
			SessionID:  session.ID,
			CreatedAt:  now,
		}
	}
	if err := s.repo.SeatAllocation.CreateBatch(ctx, allocations); err != nil {
		s.log.Error("Seat allocation failed for paid session",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
		)
	}

	s.recordOrderStatus(ctx, session, entity.PaymentStatusPaid)

	event := notification.TicketIssued{
		SessionID:  session.ID,
		CustomerID: session.CustomerID,
		ShowtimeID: session.ShowtimeID,
		SeatIDs:    session.SeatIDs(),
		OrderID:    *session.OrderID,
		PaidAt:     now,
	}
	if session.Pricing != nil {
		event.Total = session.Pricing.Total
	}
	if err := s.notifier.SendTicket(ctx, event); err != nil {
		s.log.Warn("Ticket notification failed", zap.Error(err), zap.String("session_id", session.ID.String()))
	}

	s.log.Info("Booking paid",
		zap.String("session_id", session.ID.String()),
		zap.String("order_id", *session.OrderID),
		zap.Int("seats", len(session.SeatHolds)),
	)
	return nil
}

func (s *checkoutService) gatewayStatus(ctx context.Context, session *entity.BookingSession) (entity.PaymentStatus, error) {
	if session.OrderID == nil || session.Provider == nil {
		return "", fmt.Errorf("session %s has no payment order", session.ID)
	}
	gw, err := s.gateways.Get(*session.Provider)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	return gw.GetOrderStatus(callCtx, *session.OrderID)
}

// closeOrder cancels the payment link (best effort) and records the final status.
func (s *checkoutService) closeOrder(ctx context.Context, session *entity.BookingSession, status entity.PaymentStatus) {
	if session.OrderID == nil || session.Provider == nil {
		return
	}
	if gw, err := s.gateways.Get(*session.Provider); err == nil {
		s.expireOrderQuietly(ctx, gw, *session.OrderID)
	}
	s.recordOrderStatus(ctx, session, status)
}

func (s *checkoutService) expireOrderQuietly(ctx context.Context, gw gateway.Gateway, orderID string) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	if err := gw.SetExpired(callCtx, orderID); err != nil {
		s.log.Warn("Failed to expire payment order", zap.Error(err), zap.String("order_id", orderID))
	}
}

func (s *checkoutService) recordOrderStatus(ctx context.Context, session *entity.BookingSession, status entity.PaymentStatus) {
	if session.OrderID == nil {
		return
	}
	if err := s.repo.PaymentOrder.UpdateStatus(ctx, *session.OrderID, status); err != nil {
		s.log.Warn("Failed to record payment status", zap.Error(err), zap.String("order_id", *session.OrderID))
	}
}

func localStatus(state entity.SessionState) entity.PaymentStatus {
	switch state {
	case entity.SessionStatePaid:
		return entity.PaymentStatusPaid
	case entity.SessionStateExpired:
		return entity.PaymentStatusExpired
	case entity.SessionStateCancelled:
		return entity.PaymentStatusCancelled
	default:
		return entity.PaymentStatusPending
	}
}

func statusResponse(orderID string, status entity.PaymentStatus, session *entity.BookingSession) *response.PaymentStatusResponse {
	return &response.PaymentStatusResponse{
		OrderID:      orderID,
		Status:       status,
		SessionState: session.State,
	}
}
