package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixed        DiscountType = "fixed"
	DiscountFreeShipping DiscountType = "freeShipping"
)

// ParseDiscountType accepts the canonical names plus the legacy
// "shipping" and "free_shipping" spellings.
func ParseDiscountType(s string) (DiscountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent":
		return DiscountPercentage, nil
	case "fixed":
		return DiscountFixed, nil
	case "freeshipping", "free_shipping", "shipping":
		return DiscountFreeShipping, nil
	default:
		return "", fmt.Errorf("unknown discount type %q", s)
	}
}

// Coupon is a discount rule from the coupon catalog. The cart keeps a copy
// taken at apply time.
type Coupon struct {
	Code            string          `json:"code"`
	DiscountType    DiscountType    `json:"discountType"`
	DiscountValue   decimal.Decimal `json:"discountValue"`
	MinimumPurchase decimal.Decimal `json:"minimumPurchase"`
	Expiry          *time.Time      `json:"expiry,omitempty"`
}

// Expired reports whether the coupon has an expiry before now.
func (c Coupon) Expired(now time.Time) bool {
	return c.Expiry != nil && c.Expiry.Before(now)
}
