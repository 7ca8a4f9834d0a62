package cart

import (
	"time"

	"github.com/fjod/go_cart/cart-service/internal/notify"
	"github.com/fjod/go_cart/cart-service/internal/pricing"
	"github.com/rs/zerolog"
)

// DefaultStalenessWindow is how old a persisted cart may be before it is
// discarded at startup.
const DefaultStalenessWindow = 7 * 24 * time.Hour

type Option func(*Store)

func WithPricing(cfg pricing.Config) Option {
	return func(s *Store) { s.pricing = cfg }
}

func WithSink(sink notify.Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

func WithStalenessWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithFeedback registers a best-effort signal fired after an item is added.
func WithFeedback(fn func()) Option {
	return func(s *Store) { s.feedback = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithWriteTimeout bounds each deferred write to the persisted store.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}
