package response

import (
	"time"

	"cinema-checkout/internal/data/entity"
)

type SeatHoldResponse struct {
	SeatID    string    `json:"seat_id"`
	HeldUntil time.Time `json:"held_until"`
}

type ComboLineResponse struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type PricingResponse struct {
	SeatsTotal         int64     `json:"seats_total"`
	CombosTotal        int64     `json:"combos_total"`
	Subtotal           int64     `json:"subtotal"`
	Discount           int64     `json:"discount"`
	Total              int64     `json:"total"`
	AppliedVoucherCode *string   `json:"applied_voucher_code"`
	CreatedAt          time.Time `json:"created_at"`
}

type BookingSessionResponse struct {
	ID         string              `json:"id"`
	ShowtimeID string              `json:"showtime_id"`
	State      entity.SessionState `json:"state"`
	Seats      []SeatHoldResponse  `json:"seats"`
	Combos     []ComboLineResponse `json:"combos"`
	Pricing    *PricingResponse    `json:"pricing,omitempty"`
	OrderID    *string             `json:"order_id,omitempty"`
	ExpiresAt  time.Time           `json:"expires_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Helper converters
func PricingToResponse(p *entity.PricingSnapshot) *PricingResponse {
	if p == nil {
		return nil
	}
	return &PricingResponse{
		SeatsTotal:         p.SeatsTotal,
		CombosTotal:        p.CombosTotal,
		Subtotal:           p.Subtotal(),
		Discount:           p.Discount,
		Total:              p.Total,
		AppliedVoucherCode: p.AppliedVoucherCode,
		CreatedAt:          p.CreatedAt,
	}
}

func BookingSessionToResponse(s *entity.BookingSession) *BookingSessionResponse {
	seats := make([]SeatHoldResponse, len(s.SeatHolds))
	for i, h := range s.SeatHolds {
		seats[i] = SeatHoldResponse{SeatID: h.SeatID.String(), HeldUntil: h.HeldUntil}
	}

	combos := make([]ComboLineResponse, len(s.Combos))
	for i, c := range s.Combos {
		combos[i] = ComboLineResponse{
			ServiceID: c.ServiceID.String(),
			Quantity:  c.Quantity,
			UnitPrice: c.UnitPriceSnapshot,
			LineTotal: c.LineTotal(),
		}
	}

	return &BookingSessionResponse{
		ID:         s.ID.String(),
		ShowtimeID: s.ShowtimeID.String(),
		State:      s.State,
		Seats:      seats,
		Combos:     combos,
		Pricing:    PricingToResponse(s.Pricing),
		OrderID:    s.OrderID,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
	}
}
