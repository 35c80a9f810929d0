// Package gateway defines the payment provider contract used by checkout.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/data/entity"

	"github.com/google/uuid"
)

// ErrUnknownProvider is returned by Registry.Get for an unregistered provider name.
var ErrUnknownProvider = errors.New("unknown payment provider")

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type CreateOrderRequest struct {
	SessionID   uuid.UUID
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
	ExpiresAt   time.Time
}

type Order struct {
	OrderID     string
	CheckoutURL string
	QRPayload   string
	Status      entity.PaymentStatus
}

// Gateway is a payment provider. Implementations must respect ctx deadlines;
// callers bound every call with a per-call timeout.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (entity.PaymentStatus, error)
	SetExpired(ctx context.Context, orderID string) error
}

// WebhookEvent is a verified status notification pushed by a provider.
type WebhookEvent struct {
	OrderID string
	Status  entity.PaymentStatus
	Amount  int64
}

// WebhookVerifier authenticates and decodes a provider's webhook body.
type WebhookVerifier interface {
	VerifyWebhook(body []byte) (*WebhookEvent, error)
}

// Registry maps provider names ("payos", ...) to gateways.
type Registry map[string]Gateway

func (r Registry) Get(provider string) (Gateway, error) {
	gw, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return gw, nil
}
