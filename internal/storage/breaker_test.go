package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Read(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Write(context.Context, string, []byte) error {
	f.calls++
	return f.err
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{err: errors.New("connection refused")}
	store := NewBreakerStore(inner, BreakerSettings{Name: "test", FailureThreshold: 3, OpenTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, store.Write(ctx, "cart:1", []byte(`{}`)))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	err := store.Write(ctx, "cart:1", []byte(`{}`))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the backend")
}

func TestBreakerStore_NotFoundIsNotAFailure(t *testing.T) {
	inner := &failingStore{err: ErrNotFound}
	store := NewBreakerStore(inner, BreakerSettings{Name: "test", FailureThreshold: 1}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := store.Read(context.Background(), "cart:1")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

func TestBreakerStore_PassesThrough(t *testing.T) {
	mem := NewMemoryStore()
	store := NewBreakerStore(mem, BreakerSettings{Name: "test"}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "cart:1", []byte(`{"items":[]}`)))
	data, err := store.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(data))
}

func TestBreakerStore_ForwardsTouch(t *testing.T) {
	inner, mr := setupTestRedis(t, time.Hour)
	store := NewBreakerStore(inner, BreakerSettings{Name: "test"}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "coupon:1", []byte(`{}`)))

	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Touch(ctx, "coupon:1"))
	assert.Greater(t, mr.TTL("coupon:1"), 50*time.Minute)

	// stores without expiry have nothing to refresh
	plain := NewBreakerStore(NewMemoryStore(), BreakerSettings{Name: "plain"}, zerolog.Nop())
	assert.NoError(t, plain.Touch(ctx, "coupon:1"))
}
