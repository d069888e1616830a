package queue

import (
	"fmt"
	"time"
)

type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

// RetryPolicy travels with every job so that a policy change never affects
// work that is already queued.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Backoff     BackoffKind   `json:"backoff"`
	BaseDelay   time.Duration `json:"base_delay"`
	// MaxDelay caps a single backoff. Zero means no cap.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
}

// DefaultRetryPolicy is three attempts with exponential backoff from two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffExponential,
		BaseDelay:   2 * time.Second,
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry policy: negative base delay %s", p.BaseDelay)
	}
	switch p.Backoff {
	case BackoffExponential, BackoffFixed:
	default:
		return fmt.Errorf("retry policy: unknown backoff %q", p.Backoff)
	}
	return nil
}

// ShouldRetry reports whether a job that just failed on the given attempt
// (1-based) gets another one.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay returns the wait before the attempt following a failed attempt n.
// Exponential backoff doubles per attempt: base, 2*base, 4*base...
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
