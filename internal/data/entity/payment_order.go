package entity

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusExpired || s == PaymentStatusCancelled
}

// PaymentOrder mirrors an order owned by the payment provider. Status is only
// the last value we observed.
type PaymentOrder struct {
	OrderID     string        `db:"order_id"`
	SessionID   uuid.UUID     `db:"session_id"`
	Provider    string        `db:"provider"`
	Amount      int64         `db:"amount"`
	Status      PaymentStatus `db:"status"`
	CheckoutURL string        `db:"checkout_url"`
	QRPayload   string        `db:"qr_payload"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}
