// internal/common/lock/lock.go
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("lock: not acquired")

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker serializes work on a single entity key across callers.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Key joins entity parts into a lock key.
func Key(parts ...string) string {
	k := "permit:lock"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
