package request

type CreateCheckoutRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=payos"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
	CancelURL string `json:"cancel_url" validate:"omitempty,url"`
}
