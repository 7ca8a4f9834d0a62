package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/cart-service/internal/storage"
	"github.com/rs/zerolog"
)

type snapshot struct {
	lines  []domain.CartLine
	coupon *domain.Coupon
}

type persistJob struct {
	snap  *snapshot
	force bool
	ack   chan error
}

// persister writes cart snapshots behind the store, in commit order, on a
// single goroutine. A record is only written when its content differs from
// the last successful write.
type persister struct {
	backend storage.Store
	keys    storage.Keys
	log     zerolog.Logger
	clock   func() time.Time
	timeout time.Duration

	jobs chan persistJob
	done chan struct{}

	// owned by the worker once run has started
	lastCart   []byte
	lastCoupon []byte

	mu        sync.Mutex
	lastWrite time.Time
}

func newPersister(backend storage.Store, keys storage.Keys, clock func() time.Time, timeout time.Duration, log zerolog.Logger) *persister {
	return &persister{
		backend: backend,
		keys:    keys,
		log:     log,
		clock:   clock,
		timeout: timeout,
		jobs:    make(chan persistJob, 64),
		done:    make(chan struct{}),
	}
}

func (p *persister) run() {
	defer close(p.done)
	for job := range p.jobs {
		var err error
		if job.snap != nil {
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			err = p.write(ctx, *job.snap, job.force)
			cancel()
		}
		if job.ack != nil {
			job.ack <- err
		}
	}
}

func (p *persister) schedule(snap snapshot) {
	p.jobs <- persistJob{snap: &snap}
}

// submit queues a job whose completion the caller waits for with await.
func (p *persister) submit(snap *snapshot, force bool) chan error {
	ack := make(chan error, 1)
	p.jobs <- persistJob{snap: snap, force: force, ack: ack}
	return ack
}

func await(ctx context.Context, ack chan error) error {
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the queue; the worker drains what is left and exits.
func (p *persister) stop(ctx context.Context) error {
	close(p.jobs)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remember records snap as already persisted so hydrated content is not
// written straight back.
func (p *persister) remember(snap snapshot) {
	p.lastCart, _ = json.Marshal(normalizeLines(snap.lines))
	p.lastCoupon, _ = json.Marshal(snap.coupon)
}

func (p *persister) write(ctx context.Context, snap snapshot, force bool) error {
	lines := normalizeLines(snap.lines)
	now := p.clock().UnixMilli()
	var errs []error

	items, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}
	coupon, err := json.Marshal(snap.coupon)
	if err != nil {
		return fmt.Errorf("marshal coupon: %w", err)
	}
	writeCart := force || !bytes.Equal(items, p.lastCart)
	writeCoupon := force || !bytes.Equal(coupon, p.lastCoupon)

	if writeCart {
		if err := p.put(ctx, "cart", p.keys.Cart, domain.CartRecord{Items: lines, Timestamp: now}); err != nil {
			errs = append(errs, err)
		} else {
			p.lastCart = items
		}
	} else {
		metrics.PersistWrites.WithLabelValues("cart", "skipped").Inc()
	}

	if writeCoupon {
		if err := p.put(ctx, "coupon", p.keys.Coupon, domain.CouponRecord{Coupon: snap.coupon, Timestamp: now}); err != nil {
			errs = append(errs, err)
		} else {
			p.lastCoupon = coupon
		}
	} else {
		metrics.PersistWrites.WithLabelValues("coupon", "skipped").Inc()
	}

	// Records that expire must age together, or the unchanged one can
	// vanish while its partner is still current.
	switch {
	case writeCart && !writeCoupon:
		p.touch(ctx, p.keys.Coupon)
	case writeCoupon && !writeCart:
		p.touch(ctx, p.keys.Cart)
	}

	return errors.Join(errs...)
}

func (p *persister) touch(ctx context.Context, key string) {
	t, ok := p.backend.(storage.Toucher)
	if !ok {
		return
	}
	if err := t.Touch(ctx, key); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("refresh record expiry failed")
	}
}

func (p *persister) put(ctx context.Context, name, key string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", name, err)
	}
	if err := p.backend.Write(ctx, key, data); err != nil {
		metrics.PersistWrites.WithLabelValues(name, "failed").Inc()
		p.log.Warn().Err(err).Str("key", key).Msg("persist write failed")
		return fmt.Errorf("write %s record: %w", name, err)
	}

	metrics.PersistWrites.WithLabelValues(name, "written").Inc()
	p.mu.Lock()
	p.lastWrite = p.clock()
	p.mu.Unlock()
	return nil
}

func (p *persister) lastWriteAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWrite
}

func normalizeLines(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return []domain.CartLine{}
	}
	return lines
}
