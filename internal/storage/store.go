// Package storage holds the durable key-value capability the cart
// persists its records into.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Store reads and writes opaque JSON records by key.
// Read returns ErrNotFound for an absent key.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Toucher is implemented by stores whose records expire. Touch restarts
// the expiry of an existing key without rewriting it; a missing key is
// not an error.
type Toucher interface {
	Touch(ctx context.Context, key string) error
}

// Keys names the two independent records of one cart.
type Keys struct {
	Cart   string
	Coupon string
}

func SessionKeys(sessionID string) Keys {
	return Keys{
		Cart:   fmt.Sprintf("cart:%s", sessionID),
		Coupon: fmt.Sprintf("coupon:%s", sessionID),
	}
}
