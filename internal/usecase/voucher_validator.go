package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
)

type OrderContext struct {
	Subtotal int64
	Now      time.Time
}

// VoucherValidator checks a code against the voucher store without touching
// usage counters; those move only when a booking is paid.
type VoucherValidator struct {
	vouchers repository.VoucherRepository
}

func NewVoucherValidator(vouchers repository.VoucherRepository) *VoucherValidator {
	return &VoucherValidator{vouchers: vouchers}
}

// NormalizeVoucherCode trims and upper-cases a customer-entered code.
func NormalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (v *VoucherValidator) Validate(ctx context.Context, code string, order OrderContext) (*entity.VoucherApplication, error) {
	code = NormalizeVoucherCode(code)

	voucher, err := v.vouchers.GetVoucher(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load voucher %s: %w", code, err)
	}

	switch {
	case voucher == nil:
		return nil, voucherRejected(code, ReasonVoucherNotFound)
	case !voucher.IsActive:
		return nil, voucherRejected(code, ReasonVoucherInactive)
	case order.Now.Before(voucher.ValidFrom):
		return nil, voucherRejected(code, ReasonVoucherNotYetActive)
	case order.Now.After(voucher.ValidTo):
		return nil, voucherRejected(code, ReasonVoucherExpired)
	case voucher.UsageLimit > 0 && voucher.UsedCount >= voucher.UsageLimit:
		return nil, voucherRejected(code, ReasonUsageLimitReached)
	case order.Subtotal < voucher.MinOrderValue:
		return nil, voucherRejected(code, ReasonNotApplicable)
	}

	return &entity.VoucherApplication{
		Code:          voucher.Code,
		DiscountType:  voucher.DiscountType,
		DiscountValue: voucher.DiscountValue,
	}, nil
}
