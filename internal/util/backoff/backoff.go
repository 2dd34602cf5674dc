// Package backoff computes capped exponential delays between retries.
package backoff

import (
	"context"
	"time"
)

// Backoff doubles its delay on every call to Next until max is reached.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

// New creates a backoff starting at base and capped at max.
func New(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	delay := b.base << uint(b.attempt)
	if delay > b.max || delay <= 0 {
		return b.max
	}
	b.attempt++
	return delay
}

// Reset restarts the sequence at base.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
