package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/dto/request"
	"cinema-checkout/internal/dto/response"
	"cinema-checkout/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	StartSession(ctx context.Context, customerID uuid.UUID, req *request.StartSessionRequest) (*response.BookingSessionResponse, error)
	GetSession(ctx context.Context, customerID, sessionID uuid.UUID) (*response.BookingSessionResponse, error)

	// Seat selection
	HoldSeats(ctx context.Context, customerID, sessionID uuid.UUID, req *request.HoldSeatsRequest) (*response.BookingSessionResponse, error)
	ReleaseSeat(ctx context.Context, customerID, sessionID, seatID uuid.UUID) (*response.BookingSessionResponse, error)

	// Cart
	UpsertCombos(ctx context.Context, customerID, sessionID uuid.UUID, req *request.UpsertCombosRequest) (*response.BookingSessionResponse, error)
	PreviewPricing(ctx context.Context, customerID, sessionID uuid.UUID, req *request.PreviewPricingRequest) (*response.PricingResponse, error)
}

type bookingService struct {
	*sessionCore
	log *zap.Logger
}

func NewBookingService(core *sessionCore, log *zap.Logger) BookingService {
	return &bookingService{
		sessionCore: core,
		log:         log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) StartSession(ctx context.Context, customerID uuid.UUID, req *request.StartSessionRequest) (*response.BookingSessionResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Start session validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	showtimeID := uuid.MustParse(req.ShowtimeID)

	showtime, err := s.repo.Catalog.GetShowtime(ctx, showtimeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load showtime %s: %w", showtimeID, err)
	}

	now := s.now()
	if !now.Before(showtime.StartsAt) {
		return nil, invalidState("showtime has already started")
	}

	session := &entity.BookingSession{
		ID:         uuid.New(),
		CustomerID: customerID,
		ShowtimeID: showtimeID,
		State:      entity.SessionStateSeatSelection,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.BookingSession.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	s.log.Info("Booking session started",
		zap.String("session_id", session.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("showtime_id", showtimeID.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)

	return response.BookingSessionToResponse(session), nil
}

func (s *bookingService) GetSession(ctx context.Context, customerID, sessionID uuid.UUID) (*response.BookingSessionResponse, error) {
	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	return response.BookingSessionToResponse(session), nil
}

// HoldSeats is all-or-nothing: if any seat conflicts, every hold taken by
// this call is released again.
func (s *bookingService) HoldSeats(ctx context.Context, customerID, sessionID uuid.UUID, req *request.HoldSeatsRequest) (*response.BookingSessionResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Hold seats validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	seatIDs := make([]uuid.UUID, len(req.SeatIDs))
	for i, raw := range req.SeatIDs {
		seatIDs[i] = uuid.MustParse(raw)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, session); err != nil {
		return nil, err
	}
	if !session.State.IsEditable() {
		return nil, invalidState("seats cannot change while awaiting payment")
	}

	var fresh []uuid.UUID
	for _, seatID := range seatIDs {
		if !session.HoldsSeat(seatID) {
			fresh = append(fresh, seatID)
		}
	}
	if len(session.SeatHolds)+len(fresh) > s.cfg.MaxSeatsPerSession {
		return nil, validationError(map[string]string{
			"SeatIDs": fmt.Sprintf("Maximum is %d seats per session", s.cfg.MaxSeatsPerSession),
		})
	}

	for _, seatID := range fresh {
		if _, err := s.repo.Catalog.GetSeat(ctx, session.ShowtimeID, seatID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, notFound(fmt.Sprintf("seat %s not found for this showtime", seatID))
			}
			return nil, fmt.Errorf("load seat %s: %w", seatID, err)
		}

		sold, err := s.repo.SeatAllocation.IsAllocated(ctx, session.ShowtimeID, seatID)
		if err != nil {
			return nil, err
		}
		if sold {
			return nil, conflictError(fmt.Sprintf("seat %s is already sold", seatID))
		}
	}

	ttl := s.holdTTL(session)
	var taken []uuid.UUID
	for _, seatID := range seatIDs {
		key := repository.SeatKey(session.ShowtimeID, seatID)
		err := s.repo.Reservation.Hold(ctx, key, session.ID, ttl)
		if err == nil {
			if !session.HoldsSeat(seatID) {
				taken = append(taken, seatID)
			}
			continue
		}

		s.rollbackHolds(ctx, session, taken)
		if errors.Is(err, repository.ErrSeatConflict) {
			s.log.Info("Seat hold conflict",
				zap.String("session_id", session.ID.String()),
				zap.String("seat_id", seatID.String()),
			)
			return nil, conflictError(fmt.Sprintf("seat %s is held by another session", seatID))
		}
		return nil, fmt.Errorf("hold seat %s: %w", seatID, err)
	}

	heldUntil := s.now().Add(ttl)
	for i := range session.SeatHolds {
		if slices.Contains(seatIDs, session.SeatHolds[i].SeatID) {
			session.SeatHolds[i].HeldUntil = heldUntil
		}
	}
	for _, seatID := range taken {
		session.SeatHolds = append(session.SeatHolds, entity.SeatHold{
			SeatID:    seatID,
			SessionID: session.ID,
			HeldUntil: heldUntil,
		})
	}
	session.State = entity.SessionStateSeatSelection
	session.Pricing = nil

	if err := s.save(ctx, session); err != nil {
		s.rollbackHolds(ctx, session, taken)
		return nil, err
	}

	return response.BookingSessionToResponse(session), nil
}

func (s *bookingService) rollbackHolds(ctx context.Context, session *entity.BookingSession, seatIDs []uuid.UUID) {
	for _, seatID := range seatIDs {
		key := repository.SeatKey(session.ShowtimeID, seatID)
		if err := s.repo.Reservation.Release(ctx, key, session.ID); err != nil {
			s.log.Warn("Failed to roll back seat hold", zap.Error(err), zap.String("seat_id", seatID.String()))
		}
	}
}

func (s *bookingService) ReleaseSeat(ctx context.Context, customerID, sessionID, seatID uuid.UUID) (*response.BookingSessionResponse, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, session); err != nil {
		return nil, err
	}
	if !session.State.IsEditable() {
		return nil, invalidState("seats cannot change while awaiting payment")
	}
	if !session.HoldsSeat(seatID) {
		return response.BookingSessionToResponse(session), nil
	}

	holds := make([]entity.SeatHold, 0, len(session.SeatHolds))
	for _, h := range session.SeatHolds {
		if h.SeatID != seatID {
			holds = append(holds, h)
		}
	}
	session.SeatHolds = holds
	session.State = entity.SessionStateSeatSelection
	session.Pricing = nil

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	key := repository.SeatKey(session.ShowtimeID, seatID)
	if err := s.repo.Reservation.Release(ctx, key, session.ID); err != nil {
		s.log.Warn("Failed to release seat hold", zap.Error(err), zap.String("seat_id", seatID.String()))
	}

	return response.BookingSessionToResponse(session), nil
}

// UpsertCombos replaces the full combo selection and captures current prices.
func (s *bookingService) UpsertCombos(ctx context.Context, customerID, sessionID uuid.UUID, req *request.UpsertCombosRequest) (*response.BookingSessionResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Upsert combos validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	items, total := mergeComboItems(req.Items)
	if total > s.cfg.ComboSelectionLimit {
		return nil, validationError(map[string]string{
			"Items": fmt.Sprintf("Total quantity must not exceed %d", s.cfg.ComboSelectionLimit),
		})
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, session); err != nil {
		return nil, err
	}
	if !session.State.IsEditable() {
		return nil, invalidState("combos cannot change while awaiting payment")
	}
	if len(session.SeatHolds) == 0 {
		return nil, invalidState("hold at least one seat before choosing combos")
	}
	if err := s.verifySeatsOwned(ctx, session); err != nil {
		return nil, err
	}

	for i := range items {
		price, err := s.repo.Catalog.GetComboPrice(ctx, items[i].ServiceID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(fmt.Sprintf("combo %s not found", items[i].ServiceID))
		}
		if err != nil {
			return nil, fmt.Errorf("price combo %s: %w", items[i].ServiceID, err)
		}
		items[i].UnitPriceSnapshot = price
	}

	session.Combos = items
	session.State = entity.SessionStateCombosSelected
	session.Pricing = nil

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	return response.BookingSessionToResponse(session), nil
}

// mergeComboItems folds duplicate service ids together, keeping first-seen order.
func mergeComboItems(in []request.ComboItemRequest) ([]entity.ComboLineItem, int) {
	items := make([]entity.ComboLineItem, 0, len(in))
	index := make(map[uuid.UUID]int, len(in))
	total := 0

	for _, item := range in {
		serviceID := uuid.MustParse(item.ServiceID)
		total += item.Quantity
		if i, ok := index[serviceID]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[serviceID] = len(items)
		items = append(items, entity.ComboLineItem{ServiceID: serviceID, Quantity: item.Quantity})
	}

	return items, total
}

// PreviewPricing regenerates the snapshot. A rejected voucher fails the call
// and leaves the session untouched.
func (s *bookingService) PreviewPricing(ctx context.Context, customerID, sessionID uuid.UUID, req *request.PreviewPricingRequest) (*response.PricingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Preview pricing validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, session); err != nil {
		return nil, err
	}
	if session.State != entity.SessionStateCombosSelected && session.State != entity.SessionStatePricingPreviewed {
		return nil, invalidState(fmt.Sprintf("cannot preview pricing in state %s", session.State))
	}
	if err := s.verifySeatsOwned(ctx, session); err != nil {
		return nil, err
	}

	seats := make([]entity.PricedSeat, len(session.SeatHolds))
	for i, hold := range session.SeatHolds {
		price, err := s.repo.Catalog.GetSeatPrice(ctx, session.ShowtimeID, hold.SeatID)
		if err != nil {
			return nil, fmt.Errorf("price seat %s: %w", hold.SeatID, err)
		}
		seats[i] = entity.PricedSeat{SeatID: hold.SeatID, Price: price}
	}

	now := s.now()
	var voucher *entity.VoucherApplication
	if req.VoucherCode != nil {
		base := s.pricing.Price(seats, session.Combos, nil)
		voucher, err = s.voucher.Validate(ctx, *req.VoucherCode, OrderContext{Subtotal: base.Subtotal(), Now: now})
		if err != nil {
			s.log.Info("Voucher rejected at preview",
				zap.String("session_id", session.ID.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	snapshot := s.pricing.Price(seats, session.Combos, voucher)
	snapshot.CreatedAt = now

	session.Pricing = &snapshot
	session.State = entity.SessionStatePricingPreviewed

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	return response.PricingToResponse(session.Pricing), nil
}
