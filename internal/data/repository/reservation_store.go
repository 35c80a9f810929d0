package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReservationStore keeps temporary seat holds. Hold is a single atomic
// check-and-set: of N sessions racing for one seat exactly one succeeds.
type ReservationStore interface {
	// Hold claims seatKey for sessionID, or refreshes the ttl when the session
	// already holds it. Returns ErrSeatConflict if another live hold exists.
	Hold(ctx context.Context, seatKey string, sessionID uuid.UUID, ttl time.Duration) error
	// Release drops the hold if sessionID owns it. Releasing a seat that is
	// not held, or held by someone else, is a no-op.
	Release(ctx context.Context, seatKey string, sessionID uuid.UUID) error
	IsHeldByOther(ctx context.Context, seatKey string, sessionID uuid.UUID) (bool, error)
	// Commit turns the session's hold into a permanent allocation.
	Commit(ctx context.Context, seatKey string, sessionID uuid.UUID) error
}

// SeatKey scopes a seat to a showtime; the same physical seat is sold once per show.
func SeatKey(showtimeID, seatID uuid.UUID) string {
	return showtimeID.String() + ":" + seatID.String()
}
