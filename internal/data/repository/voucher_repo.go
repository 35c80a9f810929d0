package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type VoucherRepository interface {
	GetVoucher(ctx context.Context, code string) (*entity.Voucher, error)
	IncrementUsage(ctx context.Context, code string) error
}

type voucherRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewVoucherRepository(db database.PgxIface, log *zap.Logger) VoucherRepository {
	return &voucherRepository{
		db:  db,
		log: log.With(zap.String("repository", "voucher")),
	}
}

func (r *voucherRepository) GetVoucher(ctx context.Context, code string) (*entity.Voucher, error) {
	query := `
		SELECT code, discount_type, discount_value, valid_from, valid_to,
		       usage_limit, used_count, is_active, min_order_value
		FROM vouchers
		WHERE code = $1
	`

	var voucher entity.Voucher
	err := r.db.QueryRow(ctx, query, code).Scan(
		&voucher.Code,
		&voucher.DiscountType,
		&voucher.DiscountValue,
		&voucher.ValidFrom,
		&voucher.ValidTo,
		&voucher.UsageLimit,
		&voucher.UsedCount,
		&voucher.IsActive,
		&voucher.MinOrderValue,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find voucher",
			zap.Error(err),
			zap.String("code", code),
		)
		return nil, fmt.Errorf("find voucher %s: %w", code, err)
	}

	return &voucher, nil
}

func (r *voucherRepository) IncrementUsage(ctx context.Context, code string) error {
	query := `UPDATE vouchers SET used_count = used_count + 1 WHERE code = $1`

	result, err := r.db.Exec(ctx, query, code)
	if err != nil {
		r.log.Error("Failed to increment voucher usage",
			zap.Error(err),
			zap.String("code", code),
		)
		return fmt.Errorf("increment voucher %s: %w", code, err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
