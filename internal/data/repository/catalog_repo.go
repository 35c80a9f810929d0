package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CatalogRepository is the read-only view of showtimes, seats and concessions.
// Missing rows are reported as ErrNotFound.
type CatalogRepository interface {
	GetShowtime(ctx context.Context, showtimeID uuid.UUID) (*entity.Showtime, error)
	GetSeat(ctx context.Context, showtimeID, seatID uuid.UUID) (*entity.Seat, error)
	GetSeatPrice(ctx context.Context, showtimeID, seatID uuid.UUID) (int64, error)
	GetComboPrice(ctx context.Context, serviceID uuid.UUID) (int64, error)
}

type catalogRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewCatalogRepository(db database.PgxIface, log *zap.Logger) CatalogRepository {
	return &catalogRepository{
		db:  db,
		log: log.With(zap.String("repository", "catalog")),
	}
}

func (r *catalogRepository) GetShowtime(ctx context.Context, showtimeID uuid.UUID) (*entity.Showtime, error) {
	query := `
		SELECT id, hall_id, movie_id, starts_at, base_price
		FROM showtimes
		WHERE id = $1
	`

	var showtime entity.Showtime
	err := r.db.QueryRow(ctx, query, showtimeID).Scan(
		&showtime.ID,
		&showtime.HallID,
		&showtime.MovieID,
		&showtime.StartsAt,
		&showtime.BasePrice,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.log.Error("Failed to find showtime",
			zap.Error(err),
			zap.String("showtime_id", showtimeID.String()),
		)
		return nil, fmt.Errorf("find showtime %s: %w", showtimeID, err)
	}

	return &showtime, nil
}

// GetSeat only finds seats in the hall the showtime plays in.
func (r *catalogRepository) GetSeat(ctx context.Context, showtimeID, seatID uuid.UUID) (*entity.Seat, error) {
	query := `
		SELECT s.id, s.hall_id, s.seat_number, s.seat_type, COALESCE(t.surcharge, 0)
		FROM showtimes st
		JOIN seats s ON s.hall_id = st.hall_id
		LEFT JOIN seat_types t ON t.code = s.seat_type
		WHERE st.id = $1 AND s.id = $2
	`

	var seat entity.Seat
	err := r.db.QueryRow(ctx, query, showtimeID, seatID).Scan(
		&seat.ID,
		&seat.HallID,
		&seat.SeatNumber,
		&seat.SeatType,
		&seat.Surcharge,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.log.Error("Failed to find seat",
			zap.Error(err),
			zap.String("showtime_id", showtimeID.String()),
			zap.String("seat_id", seatID.String()),
		)
		return nil, fmt.Errorf("find seat %s: %w", seatID, err)
	}

	return &seat, nil
}

// GetSeatPrice is the showtime base price plus the seat type surcharge.
func (r *catalogRepository) GetSeatPrice(ctx context.Context, showtimeID, seatID uuid.UUID) (int64, error) {
	query := `
		SELECT st.base_price + COALESCE(t.surcharge, 0)
		FROM showtimes st
		JOIN seats s ON s.hall_id = st.hall_id
		LEFT JOIN seat_types t ON t.code = s.seat_type
		WHERE st.id = $1 AND s.id = $2
	`

	var price int64
	err := r.db.QueryRow(ctx, query, showtimeID, seatID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		r.log.Error("Failed to get seat price",
			zap.Error(err),
			zap.String("showtime_id", showtimeID.String()),
			zap.String("seat_id", seatID.String()),
		)
		return 0, fmt.Errorf("get seat price %s: %w", seatID, err)
	}

	return price, nil
}

func (r *catalogRepository) GetComboPrice(ctx context.Context, serviceID uuid.UUID) (int64, error) {
	query := `SELECT price FROM combos WHERE id = $1 AND is_active = TRUE`

	var price int64
	err := r.db.QueryRow(ctx, query, serviceID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		r.log.Error("Failed to get combo price",
			zap.Error(err),
			zap.String("service_id", serviceID.String()),
		)
		return 0, fmt.Errorf("get combo price %s: %w", serviceID, err)
	}

	return price, nil
}
