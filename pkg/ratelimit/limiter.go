package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter to its full burst
	Reset()
}

// TokenBucket is a token bucket backed by golang.org/x/time/rate
type TokenBucket struct {
	limit rate.Limit
	burst int
	lim   *rate.Limiter
}

// NewTokenBucket allows burst requests at once and then one request every
// interval.
func NewTokenBucket(burst int, interval time.Duration) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucket{
		limit: limit,
		burst: burst,
		lim:   rate.NewLimiter(limit, burst),
	}
}

// PerMinute builds a limiter for requestsPerMinute with the given burst
func PerMinute(requestsPerMinute, burst int) *TokenBucket {
	if requestsPerMinute <= 0 {
		return NewTokenBucket(burst, 0)
	}
	return NewTokenBucket(burst, time.Minute/time.Duration(requestsPerMinute))
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.lim.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.lim.Wait(ctx)
}

// Reset restores a full bucket
func (tb *TokenBucket) Reset() {
	tb.lim = rate.NewLimiter(tb.limit, tb.burst)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
