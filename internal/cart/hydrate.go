package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/cart-service/internal/storage"
)

// hydrate loads both records once, before the write-behind worker starts.
// A stale cart record discards both records and overwrites the store with
// the empty state. A failed read is returned: an empty cart built on top of
// it would overwrite the durable records on the next write.
func (s *Store) hydrate(ctx context.Context) error {
	var cartRec domain.CartRecord
	hasCart, err := s.readRecord(ctx, s.persist.keys.Cart, &cartRec)
	if err != nil {
		return err
	}

	var couponRec domain.CouponRecord
	hasCoupon, err := s.readRecord(ctx, s.persist.keys.Coupon, &couponRec)
	if err != nil {
		return err
	}

	if hasCart && s.clock().Sub(cartRec.WrittenAt()) > s.staleAfter {
		metrics.StalenessEvictions.Inc()
		s.log.Info().Time("written_at", cartRec.WrittenAt()).Msg("discarding stale cart")

		if err := s.persist.write(ctx, snapshot{}, true); err != nil {
			s.log.Warn().Err(err).Msg("reset of stale cart not persisted")
		}
		s.hydrated = true
		return nil
	}

	if hasCart {
		s.lines = validLines(cartRec.Items)
	}
	if hasCoupon {
		s.coupon = couponRec.Coupon
	}
	s.persist.remember(s.snapshotLocked())
	s.hydrated = true
	return nil
}

// readRecord reports whether key held a decodable record. Absent and
// undecodable records are not errors; any other read failure is.
func (s *Store) readRecord(ctx context.Context, key string, into any) (bool, error) {
	data, err := s.persist.backend.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("read persisted record failed")
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable record")
		return false, nil
	}
	return true, nil
}

// validLines drops persisted lines that would break the quantity floor and
// merges duplicate product ids.
func validLines(in []domain.CartLine) []domain.CartLine {
	var out []domain.CartLine
	index := make(map[string]int, len(in))
	for _, l := range in {
		if l.ProductID == "" || l.Quantity < 1 || l.UnitPrice.IsNegative() {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}
