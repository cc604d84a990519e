// Package lock provides the atomic, TTL-bounded token that admits one active
// run at a time. The token value is the id of the run holding it.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the caller is not the current holder
var ErrNotHeld = errors.New("lock not held by caller")

// Info describes the current lock holder
type Info struct {
	Holder    string
	Owner     string
	ExpiresAt time.Time
}

// Locker is a set-if-absent lock with expiry
type Locker interface {
	// Acquire takes the lock for holder if it is free or expired. It reports
	// whether holder owns the lock afterwards and who the current holder is.
	Acquire(ctx context.Context, holder string, ttl time.Duration) (acquired bool, current string, err error)

	// Release removes the lock only if holder still owns it
	Release(ctx context.Context, holder string) error

	// Current returns the live lock, or nil when the lock is free
	Current(ctx context.Context) (*Info, error)

	Close() error
}
