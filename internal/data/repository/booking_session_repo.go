package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// BookingSessionRepository persists booking sessions. Update is a
// compare-and-swap on the version column, so of two writers that read the
// same version only one lands; the other gets ErrStaleWrite.
type BookingSessionRepository interface {
	Create(ctx context.Context, session *entity.BookingSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.BookingSession, error)
	FindByOrderID(ctx context.Context, orderID string) (*entity.BookingSession, error)
	Update(ctx context.Context, session *entity.BookingSession) error

	// Sweeper queries
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.BookingSession, error)
}

type bookingSessionRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingSessionRepository(db database.PgxIface, log *zap.Logger) BookingSessionRepository {
	return &bookingSessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking_session")),
	}
}

const bookingSessionColumns = `
	id, customer_id, showtime_id, state, seat_holds, combo_items, pricing,
	order_id, provider, expires_at, version, created_at, updated_at`

func (r *bookingSessionRepository) Create(ctx context.Context, session *entity.BookingSession) error {
	holds, combos, pricing, err := encodeSessionDocs(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO booking_sessions (` + bookingSessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.Exec(ctx, query,
		session.ID,
		session.CustomerID,
		session.ShowtimeID,
		session.State,
		holds,
		combos,
		pricing,
		session.OrderID,
		session.Provider,
		session.ExpiresAt,
		session.Version,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create booking session",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
			zap.String("customer_id", session.CustomerID.String()),
		)
		return fmt.Errorf("create booking session %s: %w", session.ID, err)
	}

	return nil
}

func (r *bookingSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.BookingSession, error) {
	query := `SELECT ` + bookingSessionColumns + ` FROM booking_sessions WHERE id = $1`

	session, err := scanBookingSession(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking session",
			zap.Error(err),
			zap.String("session_id", id.String()),
		)
		return nil, fmt.Errorf("find booking session %s: %w", id, err)
	}

	return session, nil
}

func (r *bookingSessionRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.BookingSession, error) {
	query := `SELECT ` + bookingSessionColumns + ` FROM booking_sessions WHERE order_id = $1`

	session, err := scanBookingSession(r.db.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking session by order",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("find booking session by order %s: %w", orderID, err)
	}

	return session, nil
}

// Update writes every mutable column when the stored version still matches
// session.Version, then bumps session.Version.
func (r *bookingSessionRepository) Update(ctx context.Context, session *entity.BookingSession) error {
	holds, combos, pricing, err := encodeSessionDocs(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE booking_sessions
		SET state = $3, seat_holds = $4, combo_items = $5, pricing = $6,
		    order_id = $7, provider = $8, expires_at = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $2
	`

	now := time.Now()
	result, err := r.db.Exec(ctx, query,
		session.ID,
		session.Version,
		session.State,
		holds,
		combos,
		pricing,
		session.OrderID,
		session.Provider,
		session.ExpiresAt,
		now,
	)

	if err != nil {
		r.log.Error("Failed to update booking session",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
			zap.String("state", session.State.String()),
		)
		return fmt.Errorf("update booking session %s: %w", session.ID, err)
	}

	if result.RowsAffected() == 0 {
		return ErrStaleWrite
	}

	session.Version++
	session.UpdatedAt = now
	return nil
}

// FindExpired lists sessions past their deadline. Editable sessions come
// first, then sessions awaiting payment by oldest deadline.
func (r *bookingSessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.BookingSession, error) {
	query := `
		SELECT ` + bookingSessionColumns + `
		FROM booking_sessions
		WHERE expires_at <= $1
		  AND state IN ('seat_selection', 'combos_selected', 'pricing_previewed', 'awaiting_payment')
		ORDER BY (state = 'awaiting_payment') ASC, expires_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.log.Error("Failed to find expired booking sessions", zap.Error(err))
		return nil, fmt.Errorf("find expired booking sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entity.BookingSession
	for rows.Next() {
		session, err := scanBookingSession(rows)
		if err != nil {
			r.log.Error("Failed to scan booking session", zap.Error(err))
			return nil, fmt.Errorf("scan booking session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired booking sessions: %w", err)
	}

	return sessions, nil
}

func encodeSessionDocs(session *entity.BookingSession) (holds, combos, pricing []byte, err error) {
	seatHolds := session.SeatHolds
	if seatHolds == nil {
		seatHolds = []entity.SeatHold{}
	}
	if holds, err = json.Marshal(seatHolds); err != nil {
		return nil, nil, nil, fmt.Errorf("encode seat holds: %w", err)
	}

	items := session.Combos
	if items == nil {
		items = []entity.ComboLineItem{}
	}
	if combos, err = json.Marshal(items); err != nil {
		return nil, nil, nil, fmt.Errorf("encode combo items: %w", err)
	}

	if session.Pricing != nil {
		if pricing, err = json.Marshal(session.Pricing); err != nil {
			return nil, nil, nil, fmt.Errorf("encode pricing: %w", err)
		}
	}

	return holds, combos, pricing, nil
}

func scanBookingSession(row pgx.Row) (*entity.BookingSession, error) {
	var (
		session entity.BookingSession
		holds   []byte
		combos  []byte
		pricing []byte
	)

	err := row.Scan(
		&session.ID,
		&session.CustomerID,
		&session.ShowtimeID,
		&session.State,
		&holds,
		&combos,
		&pricing,
		&session.OrderID,
		&session.Provider,
		&session.ExpiresAt,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(holds, &session.SeatHolds); err != nil {
		return nil, fmt.Errorf("decode seat holds: %w", err)
	}
	if err := json.Unmarshal(combos, &session.Combos); err != nil {
		return nil, fmt.Errorf("decode combo items: %w", err)
	}
	if len(pricing) > 0 {
		session.Pricing = &entity.PricingSnapshot{}
		if err := json.Unmarshal(pricing, session.Pricing); err != nil {
			return nil, fmt.Errorf("decode pricing: %w", err)
		}
	}

	return &session, nil
}
