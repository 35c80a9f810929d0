package entity

import (
	"time"

	"github.com/google/uuid"
)

type Showtime struct {
	ID        uuid.UUID `db:"id"`
	HallID    uuid.UUID `db:"hall_id"`
	MovieID   uuid.UUID `db:"movie_id"`
	StartsAt  time.Time `db:"starts_at"`
	BasePrice int64     `db:"base_price"`
}

type Seat struct {
	ID         uuid.UUID `db:"id"`
	HallID     uuid.UUID `db:"hall_id"`
	SeatNumber string    `db:"seat_number"` // A1, A2, B1, etc.
	SeatType   string    `db:"seat_type"`   // standard, vip, couple
	Surcharge  int64     `db:"surcharge"`
}

// SeatAllocation is a seat permanently sold to a paid session.
type SeatAllocation struct {
	ShowtimeID uuid.UUID `db:"showtime_id"`
	SeatID     uuid.UUID `db:"seat_id"`
	SessionID  uuid.UUID `db:"session_id"`
	CreatedAt  time.Time `db:"created_at"`
}
