// Package pricing derives cart totals from lines and the applied coupon.
package pricing

import (
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Config holds the shipping rates used by Calculate.
type Config struct {
	BaseShipping          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultConfig is 15 flat shipping, waived from 250 after discount.
func DefaultConfig() Config {
	return Config{
		BaseShipping:          decimal.NewFromInt(15),
		FreeShippingThreshold: decimal.NewFromInt(250),
	}
}

type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"totalItems"`
}

var hundred = decimal.NewFromInt(100)

// Calculate has no side effects and is defined for every cart state.
func Calculate(cfg Config, lines []domain.CartLine, coupon *domain.Coupon) Totals {
	subtotal := decimal.Zero
	items := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
		items += l.Quantity
	}

	discount := Discount(subtotal, coupon)
	shipping := Shipping(cfg, subtotal, discount, items, coupon)

	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		Shipping:   shipping,
		Total:      total,
		TotalItems: items,
	}
}

// Discount is the amount the coupon takes off the subtotal. A fixed coupon
// is not capped by the subtotal; the total floor handles that case.
func Discount(subtotal decimal.Decimal, coupon *domain.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}
	switch coupon.DiscountType {
	case domain.DiscountPercentage:
		return subtotal.Mul(coupon.DiscountValue).Div(hundred).Round(2)
	case domain.DiscountFixed:
		return coupon.DiscountValue
	default:
		return decimal.Zero
	}
}

// Shipping is waived for free-shipping coupons, for discounted subtotals at
// or above the threshold, and for empty carts.
func Shipping(cfg Config, subtotal, discount decimal.Decimal, items int, coupon *domain.Coupon) decimal.Decimal {
	if items == 0 {
		return decimal.Zero
	}
	if coupon != nil && coupon.DiscountType == domain.DiscountFreeShipping {
		return decimal.Zero
	}
	if subtotal.Sub(discount).GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.BaseShipping
}
