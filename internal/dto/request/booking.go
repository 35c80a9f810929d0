package request

type StartSessionRequest struct {
	ShowtimeID string `json:"showtime_id" validate:"required,uuid"`
}

type HoldSeatsRequest struct {
	SeatIDs []string `json:"seat_ids" validate:"required,min=1,max=8,unique,dive,uuid"`
}

type ComboItemRequest struct {
	ServiceID string `json:"service_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=8"`
}

// UpsertCombosRequest replaces the whole combo selection; an empty list clears it.
type UpsertCombosRequest struct {
	Items []ComboItemRequest `json:"items" validate:"max=20,dive"`
}

type PreviewPricingRequest struct {
	VoucherCode *string `json:"voucher_code,omitempty" validate:"omitempty,min=1,max=50"`
}
