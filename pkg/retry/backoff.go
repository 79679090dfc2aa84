package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	errs "booruscraper/pkg/errors"
)

// BackoffStrategy computes the delay before retry number attempt (1-based)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ErrorAwareBackoff picks a delay using the error that caused the retry
type ErrorAwareBackoff interface {
	NextDelayFor(attempt int, err error) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// JitterFactor spreads each delay by up to +/- this fraction (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := eb.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// ErrorTypeBackoff provides different backoff strategies based on error types
type ErrorTypeBackoff struct {
	NetworkErrorBackoff BackoffStrategy
	// RateLimitBackoff is used for HTTP 429 style throttling
	RateLimitBackoff   BackoffStrategy
	ServerErrorBackoff BackoffStrategy
	DefaultBackoff     BackoffStrategy
}

// NewErrorTypeBackoff derives per-type strategies from a base backoff.
// Rate limiting waits considerably longer than the other transient kinds.
func NewErrorTypeBackoff(base *ExponentialBackoff) *ErrorTypeBackoff {
	if base == nil {
		base = DefaultExponentialBackoff()
	}
	rateLimit := *base
	rateLimit.BaseDelay = 30 * time.Second
	if rateLimit.MaxDelay < 5*time.Minute {
		rateLimit.MaxDelay = 5 * time.Minute
	}
	server := *base
	server.BaseDelay = base.BaseDelay * 5

	return &ErrorTypeBackoff{
		NetworkErrorBackoff: base,
		RateLimitBackoff:    &rateLimit,
		ServerErrorBackoff:  &server,
		DefaultBackoff:      base,
	}
}

// NextDelay uses the default strategy
func (etb *ErrorTypeBackoff) NextDelay(attempt int) time.Duration {
	return etb.DefaultBackoff.NextDelay(attempt)
}

// NextDelayFor selects the strategy matching the error's type
func (etb *ErrorTypeBackoff) NextDelayFor(attempt int, err error) time.Duration {
	return etb.ForType(errs.TypeOf(err)).NextDelay(attempt)
}

// ForType returns the appropriate backoff strategy for the error type
func (etb *ErrorTypeBackoff) ForType(t errs.ErrorType) BackoffStrategy {
	switch t {
	case errs.ErrorTypeNetwork, errs.ErrorTypeTimeout:
		return etb.NetworkErrorBackoff
	case errs.ErrorTypeRateLimit:
		return etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
