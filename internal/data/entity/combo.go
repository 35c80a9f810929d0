package entity

import "github.com/google/uuid"

// ComboLineItem is one concession line in a session's cart. The unit price is
// captured when the line is written so later catalog edits don't reprice it.
type ComboLineItem struct {
	ServiceID         uuid.UUID `json:"service_id"`
	Quantity          int       `json:"quantity"`
	UnitPriceSnapshot int64     `json:"unit_price_snapshot"`
}

func (c ComboLineItem) LineTotal() int64 {
	return c.UnitPriceSnapshot * int64(c.Quantity)
}
