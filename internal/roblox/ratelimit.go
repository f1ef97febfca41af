package roblox

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultQuotaWindow = time.Minute

// RateLimiter bounds outbound Roblox API calls. A token bucket smooths
// the per-second rate; a rolling per-minute quota matches Roblox's
// throttling window. When the quota is spent, Wait blocks until the
// window rolls over instead of failing the call; the request engine
// treats limiter delays as ordinary suspension, not errors.
type RateLimiter struct {
	limiter   *rate.Limiter
	perWindow int64

	mu      sync.Mutex
	count   int64
	resetAt time.Time

	window  time.Duration
	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// RateLimiterOption configures the RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterNowFunc overrides the time function for testing.
func WithRateLimiterNowFunc(f func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.nowFunc = f
	}
}

// WithQuotaWindow overrides the rolling quota window for testing.
func WithQuotaWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		r.window = d
	}
}

// NewRateLimiter creates a rate limiter with the given per-second rate,
// burst size, and per-minute quota.
func NewRateLimiter(
	perSecond float64,
	burst int,
	perMinute int64,
	opts ...RateLimiterOption,
) *RateLimiter {
	r := &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		perWindow: perMinute,
		window:    defaultQuotaWindow,
		nowFunc:   time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resetAt = r.nowFunc().Add(r.window)
	return r
}

// Wait blocks until the limiter admits one call or the context is
// canceled. It never fails for quota reasons; it waits them out.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.waitQuota(ctx); err != nil {
		return err
	}
	return r.limiter.Wait(ctx)
}

func (r *RateLimiter) waitQuota(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.nowFunc()
		if now.After(r.resetAt) {
			r.count = 0
			r.resetAt = now.Add(r.window)
		}
		if r.count < r.perWindow {
			r.count++
			r.mu.Unlock()
			return nil
		}
		wait := r.resetAt.Sub(now)
		r.mu.Unlock()

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining returns the calls left in the current quota window.
func (r *RateLimiter) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := r.perWindow - r.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetAt returns when the current quota window expires.
func (r *RateLimiter) ResetAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetAt
}
