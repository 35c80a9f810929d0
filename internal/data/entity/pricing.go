package entity

import (
	"time"

	"github.com/google/uuid"
)

// PricedSeat is a held seat with the price the catalog quoted for it.
type PricedSeat struct {
	SeatID uuid.UUID
	Price  int64
}

// PricingSnapshot is immutable once produced. Amounts are whole currency units.
type PricingSnapshot struct {
	SeatsTotal         int64     `json:"seats_total"`
	CombosTotal        int64     `json:"combos_total"`
	Discount           int64     `json:"discount"`
	Total              int64     `json:"total"`
	AppliedVoucherCode *string   `json:"applied_voucher_code"`
	CreatedAt          time.Time `json:"created_at"`
}

func (p PricingSnapshot) Subtotal() int64 {
	return p.SeatsTotal + p.CombosTotal
}
