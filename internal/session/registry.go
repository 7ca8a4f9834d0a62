// Package session maps client session ids to their cart stores.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/cart"
	"github.com/fjod/go_cart/cart-service/internal/coupon"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/cart-service/internal/notify"
	"github.com/fjod/go_cart/cart-service/internal/pricing"
	"github.com/fjod/go_cart/cart-service/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("session registry closed")

// errEvicted marks a session that was closed by the idle sweep after the
// caller looked it up.
var errEvicted = errors.New("session evicted")

// Session is one client's cart plus the notices waiting to be shown to it.
type Session struct {
	ID      string
	Cart    *cart.Store
	Notices *notify.Queue

	mu       sync.Mutex
	evicted  bool
	lastUsed atomic.Int64 // unix nanos
}

// Snapshot is the cart view after an operation together with the notices
// raised since the previous snapshot.
type Snapshot struct {
	SessionID string
	View      cart.View
	Notices   []notify.Notice
}

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) do(fn func(c *cart.Store)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return Snapshot{}, errEvicted
	}
	if fn != nil {
		fn(s.Cart)
	}
	return Snapshot{SessionID: s.ID, View: s.Cart.View(), Notices: s.Notices.Drain()}, nil
}

func (s *Session) evict(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = true
	return s.Cart.Close(ctx)
}

type Config struct {
	Backend         storage.Store
	Catalog         coupon.Catalog
	Pricing         pricing.Config
	StalenessWindow time.Duration
	WriteTimeout    time.Duration
	HydrateTimeout  time.Duration
	NoticeLimit     int
	// IdleTimeout is how long a session may go unused before EvictIdle
	// closes it. Its cart is reloaded from the backend on the next use.
	IdleTimeout time.Duration
	// Sink, when set, returns an extra sink for the session's notifications.
	Sink   func(sessionID string) notify.Sink
	Logger zerolog.Logger
	Now    func() time.Time
}

type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	sfg singleflight.Group // one hydration per session id
}

func NewRegistry(cfg Config) *Registry {
	if cfg.HydrateTimeout <= 0 {
		cfg.HydrateTimeout = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.Pricing == (pricing.Config{}) {
		cfg.Pricing = pricing.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, opening and hydrating its cart on first
// use. Concurrent first calls for the same id share one hydration. A failed
// hydration is returned and nothing is cached, so the next call retries.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		sess.touch(r.cfg.Now())
		return sess, nil
	}

	v, err, _ := r.sfg.Do(id, func() (interface{}, error) {
		r.mu.RLock()
		sess, ok := r.sessions[id]
		r.mu.RUnlock()
		if ok {
			return sess, nil
		}

		// hydration outlives the request that triggered it
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.HydrateTimeout)
		defer cancel()
		sess, err := r.open(hctx, id)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = sess.Cart.Close(hctx)
			return nil, ErrClosed
		}
		r.sessions[id] = sess
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	sess = v.(*Session)
	sess.touch(r.cfg.Now())
	return sess, nil
}

func (r *Registry) open(ctx context.Context, id string) (*Session, error) {
	log := r.cfg.Logger.With().Str("session_id", id).Logger()
	queue := notify.NewQueue(r.cfg.NoticeLimit)

	sinks := notify.Fanout{queue, notify.LogSink{Logger: log}}
	if r.cfg.Sink != nil {
		sinks = append(sinks, r.cfg.Sink(id))
	}

	store, err := cart.Open(ctx, r.cfg.Backend, storage.SessionKeys(id), r.cfg.Catalog,
		cart.WithPricing(r.cfg.Pricing),
		cart.WithStalenessWindow(r.cfg.StalenessWindow),
		cart.WithWriteTimeout(r.cfg.WriteTimeout),
		cart.WithSink(sinks),
		cart.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	log.Debug().Int("items", store.TotalItems()).Msg("session opened")

	sess := &Session{ID: id, Cart: store, Notices: queue}
	sess.touch(r.cfg.Now())
	return sess, nil
}

// Do runs fn against the cart of session id and returns the resulting view
// with the notices drained in the same critical section. Operations on one
// session are serialised.
func (r *Registry) Do(ctx context.Context, id string, fn func(c *cart.Store)) (Snapshot, error) {
	for {
		sess, err := r.Get(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		snap, err := sess.do(fn)
		if errors.Is(err, errEvicted) {
			continue
		}
		return snap, err
	}
}

// Clear empties the cart of session id, opening it first if needed.
func (r *Registry) Clear(ctx context.Context, id string, showNotification bool) error {
	var clearErr error
	_, err := r.Do(ctx, id, func(c *cart.Store) {
		clearErr = c.ClearCart(ctx, showNotification)
	})
	if err != nil {
		return err
	}
	if clearErr != nil {
		return fmt.Errorf("clear cart %s: %w", id, clearErr)
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle closes every session unused for longer than the idle timeout,
// draining its pending writes first. It returns how many were evicted.
func (r *Registry) EvictIdle(ctx context.Context) (int, error) {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*Session
	for id, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(r.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	var errs []error
	for _, sess := range idle {
		if err := sess.evict(ctx); err != nil {
			errs = append(errs, fmt.Errorf("evict session %s: %w", sess.ID, err))
		}
	}
	return len(idle), errors.Join(errs...)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := r.EvictIdle(ctx)
			if err != nil {
				r.cfg.Logger.Warn().Err(err).Msg("idle session eviction incomplete")
			}
			if n > 0 {
				r.cfg.Logger.Debug().Int("evicted", n).Int("active", r.Len()).Msg("idle sessions evicted")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes and closes every open cart. Get fails afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for id, sess := range sessions {
		if err := sess.evict(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
		}
	}
	metrics.ActiveSessions.Set(0)
	return errors.Join(errs...)
}
