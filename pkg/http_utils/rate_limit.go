package http_utils

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	UPPER_THRESHOLD = 2   // 2 seconds
	LOWER_THRESHOLD = 0.3 // 300 milliseconds
)

// RateLimiter paces requests to the target. When adaptive, the rate drops
// while the target answers slowly and recovers up to the configured rate when
// it speeds up again.
type RateLimiter struct {
	tokenBucket            *TokenBucket
	ceiling                float64
	adaptive               bool
	rollingAvgResponseTime float64
	numResponses           int64
	mu                     sync.Mutex
}

func NewRateLimiter(rate float64, adaptive bool) *RateLimiter {
	minRate := float64(MIN_RATE)
	if rate < minRate {
		minRate = rate
	}
	return &RateLimiter{
		tokenBucket: NewTokenBucket(rate, rate, minRate),
		ceiling:     rate,
		adaptive:    adaptive,
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.tokenBucket.Wait(ctx)
}

func (r *RateLimiter) Rate() float64 {
	return r.tokenBucket.Rate()
}

func (r *RateLimiter) RecordResponseTime(d time.Duration) {
	if !r.adaptive {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	responseTime := d.Seconds()
	r.rollingAvgResponseTime = (r.rollingAvgResponseTime*float64(r.numResponses) + responseTime) / float64(r.numResponses+1)
	r.numResponses++

	rate := r.tokenBucket.Rate()
	if r.rollingAvgResponseTime > UPPER_THRESHOLD {
		r.tokenBucket.AdjustRate(rate * 0.9) // reduce rate by 10%
		log.Info().Float64("avg_response_time", r.rollingAvgResponseTime).Float64("rate", r.tokenBucket.Rate()).Msg("Reducing request rate")
	} else if r.rollingAvgResponseTime < LOWER_THRESHOLD && rate < r.ceiling {
		newRate := rate * 1.1
		if newRate > r.ceiling {
			newRate = r.ceiling
		}
		r.tokenBucket.AdjustRate(newRate)
		log.Debug().Float64("avg_response_time", r.rollingAvgResponseTime).Float64("rate", newRate).Msg("Increasing request rate")
	}
}
