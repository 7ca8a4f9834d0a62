package pricing

import (
	"testing"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func line(id string, price int64, qty int) domain.CartLine {
	return domain.CartLine{ProductID: id, Name: id, UnitPrice: dec(price), Quantity: qty}
}

func assertDec(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %d, got %s", field, want, got)
}

func TestCalculate_EmptyCart(t *testing.T) {
	got := Calculate(DefaultConfig(), nil, nil)

	assertDec(t, 0, got.Subtotal, "subtotal")
	assertDec(t, 0, got.Discount, "discount")
	assertDec(t, 0, got.Shipping, "shipping")
	assertDec(t, 0, got.Total, "total")
	assert.Equal(t, 0, got.TotalItems)
}

func TestCalculate_BaseShippingBelowThreshold(t *testing.T) {
	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 100, 1)}, nil)

	assertDec(t, 100, got.Subtotal, "subtotal")
	assertDec(t, 15, got.Shipping, "shipping")
	assertDec(t, 115, got.Total, "total")
	assert.Equal(t, 1, got.TotalItems)
}

func TestCalculate_FreeShippingAtThreshold(t *testing.T) {
	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 125, 2)}, nil)

	assertDec(t, 250, got.Subtotal, "subtotal")
	assertDec(t, 0, got.Shipping, "shipping")
	assertDec(t, 250, got.Total, "total")
}

func TestCalculate_PercentageCoupon(t *testing.T) {
	coupon := &domain.Coupon{Code: "TECH10", DiscountType: domain.DiscountPercentage, DiscountValue: dec(10), MinimumPurchase: dec(100)}

	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 100, 2)}, coupon)

	assertDec(t, 200, got.Subtotal, "subtotal")
	assertDec(t, 20, got.Discount, "discount")
	assertDec(t, 15, got.Shipping, "shipping")
	assertDec(t, 195, got.Total, "total")
}

func TestCalculate_DiscountPushesBelowFreeShipping(t *testing.T) {
	coupon := &domain.Coupon{Code: "TECH10", DiscountType: domain.DiscountPercentage, DiscountValue: dec(10)}

	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 260, 1)}, coupon)

	assertDec(t, 26, got.Discount, "discount")
	assertDec(t, 15, got.Shipping, "shipping")
	assertDec(t, 249, got.Total, "total")
}

func TestCalculate_PercentageRoundsToCents(t *testing.T) {
	coupon := &domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: dec(15)}
	lines := []domain.CartLine{{ProductID: "A", UnitPrice: decimal.RequireFromString("33.33"), Quantity: 1}}

	got := Calculate(DefaultConfig(), lines, coupon)

	assert.Equal(t, "5", got.Discount.String())
}

func TestCalculate_FixedCouponFloorsTotalAtZero(t *testing.T) {
	coupon := &domain.Coupon{Code: "BIG", DiscountType: domain.DiscountFixed, DiscountValue: dec(500)}

	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 100, 1)}, coupon)

	assertDec(t, 500, got.Discount, "discount")
	assertDec(t, 15, got.Shipping, "shipping")
	assertDec(t, 0, got.Total, "total")
}

func TestCalculate_FreeShippingCoupon(t *testing.T) {
	coupon := &domain.Coupon{Code: "SHIPFREE", DiscountType: domain.DiscountFreeShipping}

	got := Calculate(DefaultConfig(), []domain.CartLine{line("A", 40, 1)}, coupon)

	assertDec(t, 0, got.Discount, "discount")
	assertDec(t, 0, got.Shipping, "shipping")
	assertDec(t, 40, got.Total, "total")
}

func TestCalculate_CouponOnEmptyCart(t *testing.T) {
	coupon := &domain.Coupon{Code: "TECH10", DiscountType: domain.DiscountPercentage, DiscountValue: dec(10)}

	got := Calculate(DefaultConfig(), nil, coupon)

	assertDec(t, 0, got.Subtotal, "subtotal")
	assertDec(t, 0, got.Discount, "discount")
	assertDec(t, 0, got.Total, "total")
}

func TestCalculate_SubtotalIndependentOfOrder(t *testing.T) {
	a := []domain.CartLine{line("A", 10, 3), line("B", 7, 2), line("C", 99, 1)}
	b := []domain.CartLine{a[2], a[0], a[1]}

	ta := Calculate(DefaultConfig(), a, nil)
	tb := Calculate(DefaultConfig(), b, nil)

	assert.True(t, ta.Subtotal.Equal(tb.Subtotal))
	assertDec(t, 143, ta.Subtotal, "subtotal")
	assert.Equal(t, 6, ta.TotalItems)
}

func TestCalculate_CustomRates(t *testing.T) {
	cfg := Config{BaseShipping: dec(5), FreeShippingThreshold: dec(50)}

	below := Calculate(cfg, []domain.CartLine{line("A", 49, 1)}, nil)
	above := Calculate(cfg, []domain.CartLine{line("A", 50, 1)}, nil)

	assertDec(t, 5, below.Shipping, "shipping below")
	assertDec(t, 0, above.Shipping, "shipping above")
}
