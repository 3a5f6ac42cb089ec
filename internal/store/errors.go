package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound                = errors.New("store: not found")
	ErrDuplicateIdempotencyKey = errors.New("store: duplicate idempotency key")
	ErrAlreadyExists           = errors.New("store: already exists")
	ErrConcurrentModification  = errors.New("store: concurrent modification")
	ErrCapacityExceeded        = errors.New("store: capacity counter would exceed limit")
	ErrUnavailable             = errors.New("store: unavailable")
)

// IsTimeout reports whether err came from a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
