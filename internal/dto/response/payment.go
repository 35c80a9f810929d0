package response

import "cinema-checkout/internal/data/entity"

type CheckoutResponse struct {
	OrderID     string               `json:"order_id"`
	Provider    string               `json:"provider"`
	Amount      int64                `json:"amount"`
	CheckoutURL string               `json:"checkout_url,omitempty"`
	QRPayload   string               `json:"qr_payload,omitempty"`
	Status      entity.PaymentStatus `json:"status"`
}

type PaymentStatusResponse struct {
	OrderID      string               `json:"order_id"`
	Status       entity.PaymentStatus `json:"status"`
	SessionState entity.SessionState  `json:"session_state"`
}

func PaymentOrderToCheckoutResponse(o *entity.PaymentOrder) *CheckoutResponse {
	return &CheckoutResponse{
		OrderID:     o.OrderID,
		Provider:    o.Provider,
		Amount:      o.Amount,
		CheckoutURL: o.CheckoutURL,
		QRPayload:   o.QRPayload,
		Status:      o.Status,
	}
}
