package usecase

import (
	"cinema-checkout/internal/data/entity"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricingEngine turns seats, combos and an optional voucher into a snapshot.
// It is pure: identical inputs give identical output. CreatedAt is left to
// the caller.
type PricingEngine struct{}

func (PricingEngine) Price(seats []entity.PricedSeat, combos []entity.ComboLineItem, voucher *entity.VoucherApplication) entity.PricingSnapshot {
	var snapshot entity.PricingSnapshot

	for _, seat := range seats {
		snapshot.SeatsTotal += seat.Price
	}
	for _, item := range combos {
		snapshot.CombosTotal += item.LineTotal()
	}

	subtotal := snapshot.Subtotal()
	if voucher != nil {
		snapshot.Discount = discountFor(subtotal, *voucher)
		code := voucher.Code
		snapshot.AppliedVoucherCode = &code
	}
	snapshot.Total = subtotal - snapshot.Discount

	return snapshot
}

// discountFor never exceeds subtotal. Percent discounts round the discounted
// total half-up to a whole currency unit.
func discountFor(subtotal int64, v entity.VoucherApplication) int64 {
	value := decimal.NewFromFloat(v.DiscountValue)
	if value.IsNegative() {
		return 0
	}

	var discount int64
	switch v.DiscountType {
	case entity.DiscountTypePercent:
		if value.GreaterThan(hundred) {
			value = hundred
		}
		factor := decimal.NewFromInt(1).Sub(value.Div(hundred))
		total := decimal.NewFromInt(subtotal).Mul(factor).Round(0).IntPart()
		discount = subtotal - total
	case entity.DiscountTypeFixed:
		discount = value.Round(0).IntPart()
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
