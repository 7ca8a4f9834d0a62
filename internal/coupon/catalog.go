package coupon

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("coupon not found")
	ErrBelowMinimum = errors.New("minimum purchase not met")
	ErrExpired      = errors.New("coupon expired")
)

// Catalog looks coupons up by code, case-insensitively.
// Consumers define this interface, the cart only reads from it.
type Catalog interface {
	Lookup(code string) (domain.Coupon, bool)
}

// Normalize trims and upper-cases a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// StaticCatalog is an in-memory catalog whose content can be swapped
// wholesale by a refresher.
type StaticCatalog struct {
	mu      sync.RWMutex
	coupons map[string]domain.Coupon
}

func NewStaticCatalog(coupons ...domain.Coupon) *StaticCatalog {
	c := &StaticCatalog{}
	c.Replace(coupons)
	return c
}

func (c *StaticCatalog) Lookup(code string) (domain.Coupon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coupon, ok := c.coupons[Normalize(code)]
	return coupon, ok
}

// Replace swaps the catalog content. Later duplicates win.
func (c *StaticCatalog) Replace(coupons []domain.Coupon) {
	next := make(map[string]domain.Coupon, len(coupons))
	for _, coupon := range coupons {
		next[Normalize(coupon.Code)] = coupon
	}

	c.mu.Lock()
	c.coupons = next
	c.mu.Unlock()
}

// All returns the coupons sorted by code.
func (c *StaticCatalog) All() []domain.Coupon {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Coupon, 0, len(c.coupons))
	for _, coupon := range c.coupons {
		out = append(out, coupon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Match finds the coupon for code and checks it against the subtotal.
// The coupon is returned alongside ErrBelowMinimum and ErrExpired so callers
// can name the unmet condition.
func Match(catalog Catalog, code string, subtotal decimal.Decimal, now time.Time) (domain.Coupon, error) {
	coupon, ok := catalog.Lookup(code)
	if !ok {
		return domain.Coupon{}, ErrNotFound
	}
	if err := Validate(coupon, subtotal, now); err != nil {
		return coupon, err
	}
	return coupon, nil
}

func Validate(coupon domain.Coupon, subtotal decimal.Decimal, now time.Time) error {
	if coupon.Expired(now) {
		return ErrExpired
	}
	if subtotal.LessThan(coupon.MinimumPurchase) {
		return ErrBelowMinimum
	}
	return nil
}
