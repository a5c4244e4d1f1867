// rate_limiter.go - Token bucket in front of the assist and OCR providers

package ratelimit

import (
	"context"
	"sync"
	"time"
)

const pollInterval = 100 * time.Millisecond

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex

	now func() time.Time
}

// NewRateLimiter creates a new rate limiter
// maxTokens: burst size
// refillRate: time between token refills
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		now:            time.Now,
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	tokensToAdd := int(now.Sub(rl.lastRefillTime) / rl.refillRate)
	if tokensToAdd <= 0 {
		return
	}
	rl.tokens = min(rl.tokens+tokensToAdd, rl.maxTokens)
	rl.lastRefillTime = rl.lastRefillTime.Add(time.Duration(tokensToAdd) * rl.refillRate)
}

// TryAcquire consumes a token if one is available without waiting.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	for {
		if rl.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Available reports the tokens currently in the bucket.
func (rl *RateLimiter) Available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
