package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks failures to reach a remote backend. Only these
	// are retried.
	ErrUnavailable = errors.New("cache backend unavailable")

	// ErrCorrupt marks a stored entry that cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Backoff retries calls to a remote backend, doubling Delay after every
// failed attempt.
type Backoff struct {
	Attempts int
	Delay    time.Duration
}

// DefaultBackoff is used by RedisCache.
var DefaultBackoff = Backoff{Attempts: 3, Delay: 100 * time.Millisecond}

// Do runs fn until it returns nil or an error that does not wrap
// ErrUnavailable, the attempts run out, or ctx ends.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	delay := b.Delay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, ErrUnavailable) || attempt >= b.Attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
}
