package parser

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests per host.
// Each host gets its own token bucket so one slow site never throttles another.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	burst    int
}

// NewRateLimiter creates a limiter that allows one request per interval
// per host, with the given burst.
//
// Example usage:
//
//	limiter := parser.NewRateLimiter(500*time.Millisecond, 2)
//	if err := limiter.Wait(ctx, "example.com"); err != nil {
//	    return err
//	}
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
// A zero interval disables limiting.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.interval <= 0 {
		return ctx.Err()
	}
	return rl.limiter(host).Wait(ctx)
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(rl.interval), rl.burst)
		rl.limiters[host] = l
	}
	return l
}
