package http_utils

import (
	"context"
	"sync"
	"time"
)

const MIN_RATE = 1 // 1 request per second

type TokenBucket struct {
	tokens      float64
	maxTokens   float64
	rate        float64
	lastUpdated time.Time
	mu          sync.Mutex
	minRate     float64
}

func NewTokenBucket(rate float64, maxTokens float64, minRate float64) *TokenBucket {
	if minRate == 0 {
		minRate = MIN_RATE
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &TokenBucket{
		tokens:      maxTokens,
		maxTokens:   maxTokens,
		rate:        rate,
		lastUpdated: time.Now(),
		minRate:     minRate,
	}
}

func (tb *TokenBucket) AdjustRate(newRate float64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	// Ensure rate is within bounds
	if newRate < tb.minRate {
		newRate = tb.minRate
	}
	tb.rate = newRate
}

func (tb *TokenBucket) Rate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// refill must be called with mu held.
func (tb *TokenBucket) refill(now time.Time) {
	delta := now.Sub(tb.lastUpdated).Seconds()
	tb.tokens += delta * tb.rate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	tb.lastUpdated = now
}

func (tb *TokenBucket) HasToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.tokens >= 1 {
		tb.tokens -= 1
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill(time.Now())
		if tb.tokens >= 1 {
			tb.tokens -= 1
			tb.mu.Unlock()
			return nil
		}
		missing := 1 - tb.tokens
		wait := time.Duration(missing / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
