// Package cart holds the shopper's cart: line items, at most one applied
// coupon, derived pricing, and write-behind persistence.
//
// Every operation mutates memory synchronously and then queues a write of
// the resulting state. The persisted copy can therefore lag the in-memory
// cart by the operations still in the queue; Flush waits for them.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/coupon"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/cart-service/internal/notify"
	"github.com/fjod/go_cart/cart-service/internal/pricing"
	"github.com/fjod/go_cart/cart-service/internal/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu       sync.Mutex
	lines    []domain.CartLine
	coupon   *domain.Coupon
	hydrated bool
	closed   bool

	catalog      coupon.Catalog
	pricing      pricing.Config
	sink         notify.Sink
	feedback     func()
	clock        func() time.Time
	staleAfter   time.Duration
	writeTimeout time.Duration
	log          zerolog.Logger
	persist      *persister
}

// View is a consistent read of the public cart surface.
type View struct {
	Items         []domain.CartLine `json:"items"`
	AppliedCoupon *domain.Coupon    `json:"appliedCoupon"`
	pricing.Totals
}

// Open builds a store over backend and hydrates it from the two records
// named by keys. Missing records give an empty cart. Any other read failure
// is returned and no store is started, so callers retry instead of
// persisting an empty cart over the stored one.
func Open(ctx context.Context, backend storage.Store, keys storage.Keys, catalog coupon.Catalog, opts ...Option) (*Store, error) {
	s := &Store{
		catalog:      catalog,
		pricing:      pricing.DefaultConfig(),
		sink:         notify.Discard,
		clock:        time.Now,
		staleAfter:   DefaultStalenessWindow,
		writeTimeout: 5 * time.Second,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.persist = newPersister(backend, keys, s.clock, s.writeTimeout, s.log)

	if err := s.hydrate(ctx); err != nil {
		return nil, fmt.Errorf("hydrate cart: %w", err)
	}
	go s.persist.run()
	return s, nil
}

// AddToCart merges into the existing line for the product or appends a new
// one. Quantities below 1 and negative prices are ignored.
func (s *Store) AddToCart(item domain.Item, quantity int) {
	if quantity < 1 || item.ProductID == "" || item.UnitPrice.IsNegative() {
		return
	}

	s.mu.Lock()
	var msg string
	if i := s.indexLocked(item.ProductID); i >= 0 {
		s.lines[i].Quantity += quantity
		msg = fmt.Sprintf("%s quantity updated to %d", displayName(s.lines[i]), s.lines[i].Quantity)
	} else {
		line := domain.NewCartLine(item, quantity)
		s.lines = append(s.lines, line)
		msg = fmt.Sprintf("%s added to cart", displayName(line))
	}
	s.commitLocked()
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("add").Inc()
	s.sink.Notify(notify.Success, msg)
	if s.feedback != nil {
		s.feedback()
	}
}

// RemoveFromCart drops the line for productID. Unknown ids are ignored.
func (s *Store) RemoveFromCart(productID string) {
	s.mu.Lock()
	var removed *domain.CartLine
	if i := s.indexLocked(productID); i >= 0 {
		line := s.lines[i]
		removed = &line
		s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
	}
	s.commitLocked()
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("remove").Inc()
	if removed != nil {
		s.sink.Notify(notify.Info, fmt.Sprintf("%s removed from cart", displayName(*removed)))
	}
}

// UpdateQuantity sets the line quantity; below 1 it removes the line.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	if quantity < 1 {
		s.RemoveFromCart(productID)
		return
	}

	s.mu.Lock()
	i := s.indexLocked(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.lines[i].Quantity = quantity
	name := displayName(s.lines[i])
	s.commitLocked()
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("update_quantity").Inc()
	s.sink.Notify(notify.Info, fmt.Sprintf("%s quantity changed to %d", name, quantity))
}

// ApplyCoupon replaces the applied coupon when code exists, has not expired
// and the current subtotal meets its minimum purchase. On rejection the
// cart is left untouched.
func (s *Store) ApplyCoupon(code string) bool {
	s.mu.Lock()
	subtotal := pricing.Calculate(s.pricing, s.lines, nil).Subtotal
	c, err := coupon.Match(s.catalog, code, subtotal, s.clock())
	if err != nil {
		s.mu.Unlock()
		s.rejectCoupon(c, err)
		return false
	}

	s.coupon = copyCoupon(c)
	s.commitLocked()
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("apply_coupon").Inc()
	metrics.CouponApplications.WithLabelValues("applied").Inc()
	s.sink.Notify(notify.Success, fmt.Sprintf("Coupon %s applied", c.Code))
	return true
}

func (s *Store) rejectCoupon(c domain.Coupon, err error) {
	switch {
	case errors.Is(err, coupon.ErrBelowMinimum):
		metrics.CouponApplications.WithLabelValues("below_minimum").Inc()
		s.sink.Notify(notify.Error, fmt.Sprintf("Minimum purchase of %s required for coupon %s", c.MinimumPurchase.StringFixed(2), c.Code))
	case errors.Is(err, coupon.ErrExpired):
		metrics.CouponApplications.WithLabelValues("expired").Inc()
		s.sink.Notify(notify.Error, fmt.Sprintf("Coupon %s has expired", c.Code))
	default:
		metrics.CouponApplications.WithLabelValues("not_found").Inc()
		s.sink.Notify(notify.Error, "Invalid coupon code")
	}
}

// RemoveCoupon clears the applied coupon, notifying only if one was set.
func (s *Store) RemoveCoupon() {
	s.mu.Lock()
	had := s.coupon != nil
	s.coupon = nil
	s.commitLocked()
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("remove_coupon").Inc()
	if had {
		s.sink.Notify(notify.Info, "Coupon removed")
	}
}

// ClearCart empties the cart and drops the coupon, then waits until the
// empty state has been written to the persisted store. The in-memory reset
// happens even when that write fails.
func (s *Store) ClearCart(ctx context.Context, showNotification bool) error {
	s.mu.Lock()
	s.lines = nil
	s.coupon = nil
	var ack chan error
	if s.hydrated && !s.closed {
		ack = s.persist.submit(&snapshot{}, true)
	}
	s.mu.Unlock()

	metrics.CartOperations.WithLabelValues("clear").Inc()
	if showNotification {
		s.sink.Notify(notify.Info, "Cart cleared")
	}
	if ack == nil {
		return nil
	}
	return await(ctx, ack)
}

// Flush waits until every write queued so far has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	ack := s.persist.submit(nil, false)
	s.mu.Unlock()

	return await(ctx, ack)
}

// Close drains pending writes and stops the writer. The cart stays usable
// in memory but is no longer persisted.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.persist.stop(ctx)
}

func (s *Store) Items() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLines(s.lines)
}

func (s *Store) AppliedCoupon() *domain.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon == nil {
		return nil
	}
	return copyCoupon(*s.coupon)
}

func (s *Store) Totals() pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Calculate(s.pricing, s.lines, s.coupon)
}

func (s *Store) Subtotal() decimal.Decimal { return s.Totals().Subtotal }
func (s *Store) Discount() decimal.Decimal { return s.Totals().Discount }
func (s *Store) Shipping() decimal.Decimal { return s.Totals().Shipping }
func (s *Store) Total() decimal.Decimal    { return s.Totals().Total }
func (s *Store) TotalItems() int           { return s.Totals().TotalItems }

func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Items:  copyLines(s.lines),
		Totals: pricing.Calculate(s.pricing, s.lines, s.coupon),
	}
	if s.coupon != nil {
		v.AppliedCoupon = copyCoupon(*s.coupon)
	}
	return v
}

// LastWrite is when a record was last persisted; zero if never.
func (s *Store) LastWrite() time.Time {
	return s.persist.lastWriteAt()
}

// commitLocked queues the current state once hydration has finished.
func (s *Store) commitLocked() {
	if !s.hydrated || s.closed {
		return
	}
	s.persist.schedule(s.snapshotLocked())
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{lines: copyLines(s.lines)}
	if s.coupon != nil {
		snap.coupon = copyCoupon(*s.coupon)
	}
	return snap
}

func (s *Store) indexLocked(productID string) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func copyLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}

func copyCoupon(c domain.Coupon) *domain.Coupon {
	if c.Expiry != nil {
		e := *c.Expiry
		c.Expiry = &e
	}
	return &c
}

func displayName(l domain.CartLine) string {
	if l.Name != "" {
		return l.Name
	}
	return l.ProductID
}
