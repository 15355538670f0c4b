package schedule

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy is the single retry configuration shared by every caller that
// goes through the controller. An attempt is retried only when Retryable
// reports the error as transient and the attempt cap is not yet reached.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterFrac  float64 // fraction of the delay added as random jitter
	Retryable   func(error) bool
}

// DefaultRetryPolicy mirrors the provider rate-limit guidance: three
// attempts, exponential backoff from one second capped at ten.
func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		JitterFrac:  0.5,
		Retryable:   retryable,
	}
}

// Delay returns the backoff before retry number attempt (1 = first retry),
// with jitter so simultaneous failures do not retry in lockstep.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.JitterFrac > 0 {
		d += time.Duration(rand.Int64N(int64(float64(d) * p.JitterFrac)))
	}
	return d
}

// Budget bounds a whole run. Zero values mean unlimited. Once either limit
// is crossed no new task starts; in-flight tasks are allowed to finish.
type Budget struct {
	MaxCalls int
	Deadline time.Time
}

func (b Budget) exceeded(calls int, now time.Time) bool {
	if b.MaxCalls > 0 && calls >= b.MaxCalls {
		return true
	}
	if !b.Deadline.IsZero() && now.After(b.Deadline) {
		return true
	}
	return false
}
