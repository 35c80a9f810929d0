package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxTransitionAttempts = 3

// sessionCore holds what the booking and checkout services share: storage,
// per-session locking and the state transition helpers.
type sessionCore struct {
	repo    *repository.Repository
	cfg     utils.BookingConfig
	locks   *sessionLocks
	pricing PricingEngine
	voucher *VoucherValidator
	now     func() time.Time
	log     *zap.Logger
}

func newSessionCore(repo *repository.Repository, cfg utils.BookingConfig, log *zap.Logger) *sessionCore {
	return &sessionCore{
		repo:    repo,
		cfg:     cfg,
		locks:   newSessionLocks(),
		voucher: NewVoucherValidator(repo.Voucher),
		now:     time.Now,
		log:     log,
	}
}

// load fetches a session. A session owned by another customer is reported as
// missing; uuid.Nil skips the ownership check for server-driven paths.
func (c *sessionCore) load(ctx context.Context, customerID, sessionID uuid.UUID) (*entity.BookingSession, error) {
	session, err := c.repo.BookingSession.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil || (customerID != uuid.Nil && session.CustomerID != customerID) {
		return nil, notFound("booking session not found")
	}
	return session, nil
}

func (c *sessionCore) save(ctx context.Context, session *entity.BookingSession) error {
	err := c.repo.BookingSession.Update(ctx, session)
	if errors.Is(err, repository.ErrStaleWrite) {
		return staleError("booking session changed concurrently, reload and retry")
	}
	return err
}

// transition moves the session to next with a compare-and-swap write. If
// another writer got there first the session is reloaded and re-checked.
// applied is true only for the caller whose write landed.
func (c *sessionCore) transition(ctx context.Context, session *entity.BookingSession, next entity.SessionState) (applied bool, err error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if session.State == next {
			return false, nil
		}
		if session.State.IsTerminal() && next.IsTerminal() {
			return false, nil
		}
		if !session.State.CanTransitionTo(next) {
			return false, invalidState(fmt.Sprintf("cannot move session from %s to %s", session.State, next))
		}

		prev := session.State
		session.State = next
		err := c.repo.BookingSession.Update(ctx, session)
		if err == nil {
			return true, nil
		}
		session.State = prev
		if !errors.Is(err, repository.ErrStaleWrite) {
			return false, fmt.Errorf("move session %s to %s: %w", session.ID, next, err)
		}

		fresh, err := c.load(ctx, uuid.Nil, session.ID)
		if err != nil {
			return false, err
		}
		*session = *fresh
	}
	return false, staleError("booking session changed concurrently, reload and retry")
}

// terminate ends a session and frees its seats. Ending an already ended
// session is a no-op.
func (c *sessionCore) terminate(ctx context.Context, session *entity.BookingSession, next entity.SessionState) (bool, error) {
	applied, err := c.transition(ctx, session, next)
	if err != nil || !applied {
		return applied, err
	}

	c.releaseHolds(ctx, session)
	c.log.Info("Booking session closed",
		zap.String("session_id", session.ID.String()),
		zap.String("state", session.State.String()),
		zap.Int("seats_released", len(session.SeatHolds)),
	)
	return true, nil
}

// releaseHolds is best effort; a hold that fails to release still lapses on its TTL.
func (c *sessionCore) releaseHolds(ctx context.Context, session *entity.BookingSession) {
	for _, hold := range session.SeatHolds {
		key := repository.SeatKey(session.ShowtimeID, hold.SeatID)
		if err := c.repo.Reservation.Release(ctx, key, session.ID); err != nil {
			c.log.Warn("Failed to release seat hold",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
				zap.String("seat_id", hold.SeatID.String()),
			)
		}
	}
}

// ensureOpen rejects ended sessions and expires editable sessions that are
// past their deadline. Sessions awaiting payment are left to the checkout path.
func (c *sessionCore) ensureOpen(ctx context.Context, session *entity.BookingSession) error {
	if session.State.IsTerminal() {
		return invalidState(fmt.Sprintf("booking session is %s", session.State))
	}
	if session.State.IsEditable() && session.IsExpiredAt(c.now()) {
		if _, err := c.terminate(ctx, session, entity.SessionStateExpired); err != nil {
			return err
		}
		return invalidState("booking session has expired")
	}
	return nil
}

// verifySeatsOwned refuses to go on when any held seat has been taken by
// another session.
func (c *sessionCore) verifySeatsOwned(ctx context.Context, session *entity.BookingSession) error {
	for _, hold := range session.SeatHolds {
		key := repository.SeatKey(session.ShowtimeID, hold.SeatID)
		taken, err := c.repo.Reservation.IsHeldByOther(ctx, key, session.ID)
		if err != nil {
			return fmt.Errorf("check seat %s: %w", hold.SeatID, err)
		}
		if taken {
			return conflictError(fmt.Sprintf("seat %s is no longer held by this session", hold.SeatID))
		}
	}
	return nil
}

func (c *sessionCore) holdTTL(session *entity.BookingSession) time.Duration {
	return session.ExpiresAt.Sub(c.now()) + c.cfg.HoldGrace
}
