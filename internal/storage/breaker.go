package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerStore stops calling a failing backend for a while so a dead
// Redis or Mongo does not stall every cart write. ErrNotFound counts as
// success.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]byte]
}

type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewBreakerStore(next Store, s BreakerSettings, log zerolog.Logger) *BreakerStore {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("storage breaker state changed")
		},
	})

	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) Read(ctx context.Context, key string) ([]byte, error) {
	return b.cb.Execute(func() ([]byte, error) {
		return b.next.Read(ctx, key)
	})
}

func (b *BreakerStore) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Write(ctx, key, data)
	})
	return err
}

// Touch forwards to the wrapped store when it has expiring records.
func (b *BreakerStore) Touch(ctx context.Context, key string) error {
	t, ok := b.next.(Toucher)
	if !ok {
		return nil
	}
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, t.Touch(ctx, key)
	})
	return err
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
