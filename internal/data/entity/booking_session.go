package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionStateSeatSelection    SessionState = "seat_selection"
	SessionStateCombosSelected   SessionState = "combos_selected"
	SessionStatePricingPreviewed SessionState = "pricing_previewed"
	SessionStateAwaitingPayment  SessionState = "awaiting_payment"
	SessionStatePaid             SessionState = "paid"
	SessionStateExpired          SessionState = "expired"
	SessionStateCancelled        SessionState = "cancelled"
)

// NonTerminalStates lists every state the expiry sweeper has to look at.
var NonTerminalStates = []SessionState{
	SessionStateSeatSelection,
	SessionStateCombosSelected,
	SessionStatePricingPreviewed,
	SessionStateAwaitingPayment,
}

var sessionTransitions = map[SessionState][]SessionState{
	SessionStateSeatSelection: {
		SessionStateSeatSelection, SessionStateCombosSelected,
		SessionStateCancelled, SessionStateExpired,
	},
	SessionStateCombosSelected: {
		SessionStateSeatSelection, SessionStateCombosSelected, SessionStatePricingPreviewed,
		SessionStateCancelled, SessionStateExpired,
	},
	SessionStatePricingPreviewed: {
		SessionStateSeatSelection, SessionStateCombosSelected, SessionStatePricingPreviewed,
		SessionStateAwaitingPayment, SessionStateCancelled, SessionStateExpired,
	},
	SessionStateAwaitingPayment: {
		SessionStatePaid, SessionStateCancelled, SessionStateExpired,
	},
}

func (s SessionState) IsTerminal() bool {
	return s == SessionStatePaid || s == SessionStateExpired || s == SessionStateCancelled
}

// IsEditable reports whether seats and combos may still change.
func (s SessionState) IsEditable() bool {
	return s == SessionStateSeatSelection || s == SessionStateCombosSelected || s == SessionStatePricingPreviewed
}

func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SessionState) String() string {
	return string(s)
}

// SeatHold is a temporary exclusive claim on a seat for one booking session.
type SeatHold struct {
	SeatID    uuid.UUID `json:"seat_id"`
	SessionID uuid.UUID `json:"session_id"`
	HeldUntil time.Time `json:"held_until"`
}

// BookingSession is the aggregate a customer builds up before paying.
// AwaitingPayment and Paid sessions always carry Pricing and OrderID.
type BookingSession struct {
	ID         uuid.UUID        `db:"id"`
	CustomerID uuid.UUID        `db:"customer_id"`
	ShowtimeID uuid.UUID        `db:"showtime_id"`
	State      SessionState     `db:"state"`
	SeatHolds  []SeatHold       `db:"seat_holds"`
	Combos     []ComboLineItem  `db:"combo_items"`
	Pricing    *PricingSnapshot `db:"pricing"`
	OrderID    *string          `db:"order_id"`
	Provider   *string          `db:"provider"`
	ExpiresAt  time.Time        `db:"expires_at"`
	Version    int64            `db:"version"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

func (b *BookingSession) HoldsSeat(seatID uuid.UUID) bool {
	for _, h := range b.SeatHolds {
		if h.SeatID == seatID {
			return true
		}
	}
	return false
}

func (b *BookingSession) SeatIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.SeatHolds))
	for i, h := range b.SeatHolds {
		ids[i] = h.SeatID
	}
	return ids
}

func (b *BookingSession) ComboQuantity() int {
	total := 0
	for _, item := range b.Combos {
		total += item.Quantity
	}
	return total
}

func (b *BookingSession) IsExpiredAt(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
