package entity

import "time"

type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

type Voucher struct {
	Code          string       `db:"code"`
	DiscountType  DiscountType `db:"discount_type"`
	DiscountValue float64      `db:"discount_value"`
	ValidFrom     time.Time    `db:"valid_from"`
	ValidTo       time.Time    `db:"valid_to"`
	UsageLimit    int          `db:"usage_limit"` // 0 means unlimited
	UsedCount     int          `db:"used_count"`
	IsActive      bool         `db:"is_active"`
	MinOrderValue int64        `db:"min_order_value"`
}

// VoucherApplication is the discount a validated voucher grants one session.
type VoucherApplication struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
}
