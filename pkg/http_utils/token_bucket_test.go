package http_utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	DEFAULT_MAXTOKENS = 100.0
	DEFAULT_RATE      = 10.0
)

func TestTokenBucketInitialization(t *testing.T) {
	tb := NewTokenBucket(DEFAULT_RATE, DEFAULT_MAXTOKENS, 0) // Using 0 to get default minRate
	assert.Equal(t, float64(DEFAULT_MAXTOKENS), tb.tokens)
	assert.Equal(t, float64(MIN_RATE), tb.minRate) // Should set to default minRate

	tbWithMinRate := NewTokenBucket(DEFAULT_RATE, DEFAULT_MAXTOKENS, 2.0)
	assert.Equal(t, float64(2.0), tbWithMinRate.minRate)
}

func TestTokenConsumption(t *testing.T) {
	tb := NewTokenBucket(DEFAULT_RATE, DEFAULT_MAXTOKENS, 0)
	assert.True(t, tb.HasToken())
	assert.InDelta(t, DEFAULT_MAXTOKENS-1, tb.tokens, 0.1)
}

func TestTokenRefill(t *testing.T) {
	tb := NewTokenBucket(DEFAULT_RATE, 1, 0)

	assert.True(t, tb.HasToken())
	assert.False(t, tb.HasToken())

	// Wait for a token to refill
	time.Sleep(150 * time.Millisecond)
	assert.True(t, tb.HasToken())
}

func TestRateAdjustment(t *testing.T) {
	tb := NewTokenBucket(DEFAULT_RATE, DEFAULT_MAXTOKENS, 0)

	// Adjust to a value above minRate
	tb.AdjustRate(5.0)
	assert.Equal(t, 5.0, tb.Rate())

	// Adjust to a value below minRate
	tb.AdjustRate(0.5)
	assert.Equal(t, tb.minRate, tb.Rate())
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(20, 1, 0)
	ctx := context.Background()

	start := time.Now()
	assert.NoError(t, tb.Wait(ctx))
	assert.NoError(t, tb.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	slow := NewTokenBucket(MIN_RATE, 1, 0)
	assert.True(t, slow.HasToken())
	assert.ErrorIs(t, slow.Wait(cancelled), context.Canceled)
}

func TestRateLimiterAdapts(t *testing.T) {
	limiter := NewRateLimiter(10, true)
	for i := 0; i < 5; i++ {
		limiter.RecordResponseTime(3 * time.Second)
	}
	assert.Less(t, limiter.Rate(), 10.0)

	for i := 0; i < 200; i++ {
		limiter.RecordResponseTime(time.Millisecond)
	}
	assert.Equal(t, 10.0, limiter.Rate())

	fixed := NewRateLimiter(10, false)
	fixed.RecordResponseTime(5 * time.Second)
	assert.Equal(t, 10.0, fixed.Rate())
}
