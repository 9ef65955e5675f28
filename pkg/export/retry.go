package export

import (
	"math"
	"time"
)

// RetryPolicy spaces retry attempts with exponential backoff.
type RetryPolicy struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// NewRetryPolicy creates a backoff policy. Zero values select 1m initial
// delay, 4h cap, factor 2.
func NewRetryPolicy(initialDelay, maxDelay time.Duration, multiplier float64) *RetryPolicy {
	if initialDelay <= 0 {
		initialDelay = time.Minute
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Hour
	}
	if multiplier <= 1.0 {
		multiplier = 2.0
	}
	return &RetryPolicy{initialDelay: initialDelay, maxDelay: maxDelay, multiplier: multiplier}
}

// Delay returns how long to wait after the given number of failed
// attempts before trying again.
func (p *RetryPolicy) Delay(attempts int) time.Duration {
	if attempts <= 1 {
		return p.initialDelay
	}
	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempts-1))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}

// Due reports whether an item that last failed at lastAttempt with the
// given attempt count is ready for another try.
func (p *RetryPolicy) Due(lastAttempt time.Time, attempts int, now time.Time) bool {
	return !now.Before(lastAttempt.Add(p.Delay(attempts)))
}
