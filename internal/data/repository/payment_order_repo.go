package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PaymentOrderRepository interface {
	Create(ctx context.Context, order *entity.PaymentOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*entity.PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID string, status entity.PaymentStatus) error
}

type paymentOrderRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewPaymentOrderRepository(db database.PgxIface, log *zap.Logger) PaymentOrderRepository {
	return &paymentOrderRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment_order")),
	}
}

func (r *paymentOrderRepository) Create(ctx context.Context, order *entity.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (order_id, session_id, provider, amount, status,
		                            checkout_url, qr_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		order.OrderID,
		order.SessionID,
		order.Provider,
		order.Amount,
		order.Status,
		order.CheckoutURL,
		order.QRPayload,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payment order",
			zap.Error(err),
			zap.String("order_id", order.OrderID),
			zap.String("session_id", order.SessionID.String()),
		)
		return fmt.Errorf("create payment order %s: %w", order.OrderID, err)
	}

	return nil
}

func (r *paymentOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.PaymentOrder, error) {
	query := `
		SELECT order_id, session_id, provider, amount, status,
		       checkout_url, qr_payload, created_at, updated_at
		FROM payment_orders
		WHERE order_id = $1
	`

	var order entity.PaymentOrder
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&order.OrderID,
		&order.SessionID,
		&order.Provider,
		&order.Amount,
		&order.Status,
		&order.CheckoutURL,
		&order.QRPayload,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment order",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("find payment order %s: %w", orderID, err)
	}

	return &order, nil
}

// UpdateStatus never moves an order out of a terminal status.
func (r *paymentOrderRepository) UpdateStatus(ctx context.Context, orderID string, status entity.PaymentStatus) error {
	query := `
		UPDATE payment_orders
		SET status = $2, updated_at = $3
		WHERE order_id = $1 AND status = 'PENDING'
	`

	_, err := r.db.Exec(ctx, query, orderID, status, time.Now())
	if err != nil {
		r.log.Error("Failed to update payment order status",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("update payment order %s: %w", orderID, err)
	}

	return nil
}
