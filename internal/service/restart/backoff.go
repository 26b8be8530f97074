package restart

import "time"

// Backoff yields growing delays between retries.
type Backoff interface {
	Next() time.Duration
	Reset()
}

// ExponentialBackoff doubles the delay on every call up to max.
type ExponentialBackoff struct {
	base time.Duration
	max  time.Duration
	curr time.Duration
}

// NewExponentialBackoff creates a backoff starting at base and capped at maxDelay.
func NewExponentialBackoff(base, maxDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{base: base, max: max(base, maxDelay)}
}

// Next returns the next delay.
func (b *ExponentialBackoff) Next() time.Duration {
	if b.curr == 0 {
		b.curr = b.base
	} else {
		b.curr *= 2
		if b.curr > b.max {
			b.curr = b.max
		}
	}

	return b.curr
}

// Reset starts over from base.
func (b *ExponentialBackoff) Reset() {
	b.curr = 0
}
