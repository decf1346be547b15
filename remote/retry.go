package remote

import "time"

// RetryConfig holds retry configuration for remote service calls. Retries
// apply at the outermost service call only, never across node boundaries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per call.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff after each attempt.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for remote calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// nextBackoff advances the delay, honoring the cap.
func (c RetryConfig) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.BackoffMultiplier)
	if next > c.MaxBackoff {
		return c.MaxBackoff
	}
	return next
}
