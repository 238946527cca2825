package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket enforces a per-minute quota with a burst allowance. It can be
// chained behind a Gate when the provider publishes both a per-second and a
// per-minute ceiling.
type TokenBucket struct {
	perToken time.Duration
	capacity float64
	clock    Clock

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// BucketOption configures a TokenBucket.
type BucketOption func(*TokenBucket)

// WithBucketClock replaces the wall clock.
func WithBucketClock(c Clock) BucketOption {
	return func(tb *TokenBucket) {
		if c != nil {
			tb.clock = c
		}
	}
}

// NewTokenBucket refills at tokensPerSecond up to burst tokens. The bucket
// starts full, so the first burst calls pass immediately.
func NewTokenBucket(tokensPerSecond float64, burst int, opts ...BucketOption) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	perToken := time.Hour
	if tokensPerSecond > 0 {
		perToken = time.Duration(float64(time.Second) / tokensPerSecond)
	}
	tb := &TokenBucket{
		perToken: perToken,
		capacity: float64(burst),
		tokens:   float64(burst),
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.last = tb.clock.Now()
	return tb
}

// PerMinute builds a bucket from a requests-per-minute quota.
func PerMinute(requests, burst int, opts ...BucketOption) *TokenBucket {
	return NewTokenBucket(float64(requests)/60, burst, opts...)
}

// Acquire takes one token, waiting for a refill if the bucket is empty.
func (tb *TokenBucket) Acquire(ctx context.Context) error {
	for {
		wait := tb.take()
		if wait == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tb.clock.After(wait):
		}
	}
}

// take consumes a token and returns 0, or returns how long until one is due.
func (tb *TokenBucket) take() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+float64(elapsed)/float64(tb.perToken))
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	return max(time.Duration((1-tb.tokens)*float64(tb.perToken)), time.Millisecond)
}
