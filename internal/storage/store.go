package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable = errors.New("persistence unavailable")
	ErrClosed      = errors.New("store is closed")
	ErrInvalidKey  = errors.New("invalid store key")

	// ErrCorrupt marks a backing document that exists but cannot be decoded.
	ErrCorrupt = errors.New("store document is corrupt")
)

// Store is a flat key-value namespace. Values are opaque to the store; the
// keystore layer owns their encoding.
//
// Get returns ok=false with a nil error when the key is absent. PutIfAbsent
// is an atomic check-and-set: it writes value only when key is absent and
// always returns the value that is stored once it returns. Every backend
// failure wraps ErrUnavailable, except a backing document that no longer
// decodes, which wraps ErrCorrupt.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	PutIfAbsent(ctx context.Context, key string, value []byte) (stored []byte, created bool, err error)
	Delete(ctx context.Context, key string) error
	Close() error
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || key != strings.TrimSpace(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
