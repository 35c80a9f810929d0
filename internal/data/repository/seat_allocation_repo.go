package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// SeatAllocationRepository records seats sold for a showtime. A unique
// (showtime_id, seat_id) index backs the in-memory or Redis holds.
type SeatAllocationRepository interface {
	CreateBatch(ctx context.Context, allocations []entity.SeatAllocation) error
	IsAllocated(ctx context.Context, showtimeID, seatID uuid.UUID) (bool, error)
}

type seatAllocationRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewSeatAllocationRepository(db database.PgxIface, log *zap.Logger) SeatAllocationRepository {
	return &seatAllocationRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat_allocation")),
	}
}

// CreateBatch is idempotent for the same session; a row owned by another
// session yields ErrSeatConflict.
func (r *seatAllocationRepository) CreateBatch(ctx context.Context, allocations []entity.SeatAllocation) error {
	query := `
		INSERT INTO seat_allocations (showtime_id, seat_id, session_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (showtime_id, seat_id) DO UPDATE
		SET session_id = seat_allocations.session_id
		WHERE seat_allocations.session_id = EXCLUDED.session_id
	`

	// All seats are recorded or none are.
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, a := range allocations {
			result, err := tx.Exec(ctx, query, a.ShowtimeID, a.SeatID, a.SessionID, a.CreatedAt)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
					return ErrSeatConflict
				}
				r.log.Error("Failed to create seat allocation",
					zap.Error(err),
					zap.String("showtime_id", a.ShowtimeID.String()),
					zap.String("seat_id", a.SeatID.String()),
				)
				return fmt.Errorf("allocate seat %s: %w", a.SeatID, err)
			}
			if result.RowsAffected() == 0 {
				r.log.Error("Seat already allocated to another session",
					zap.String("showtime_id", a.ShowtimeID.String()),
					zap.String("seat_id", a.SeatID.String()),
					zap.String("session_id", a.SessionID.String()),
				)
				return ErrSeatConflict
			}
		}

		return nil
	})
}

func (r *seatAllocationRepository) IsAllocated(ctx context.Context, showtimeID, seatID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM seat_allocations WHERE showtime_id = $1 AND seat_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, showtimeID, seatID).Scan(&exists); err != nil {
		r.log.Error("Failed to check seat allocation",
			zap.Error(err),
			zap.String("seat_id", seatID.String()),
		)
		return false, fmt.Errorf("check seat allocation %s: %w", seatID, err)
	}

	return exists, nil
}
