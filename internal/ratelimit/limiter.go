// Package ratelimit provides per-device token-bucket limiting for the QR
// payment flow. The scan and confirm paths each get their own limiter so a
// device hammering scans cannot starve confirms, and vice versa.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Policy describes one bucket family: buckets refill continuously at
// RefillPerSec and hold at most Burst tokens.
type Policy struct {
	RefillPerSec float64
	Burst        float64
}

func normalizePolicy(p Policy) Policy {
	if p.RefillPerSec <= 0 {
		p.RefillPerSec = 1
	}
	if p.Burst < 1 {
		p.Burst = 1
	}
	return p
}

// PerMinute builds a policy from a requests-per-minute limit and a burst size.
func PerMinute(limit, burst int) Policy {
	if burst < 1 {
		burst = 1
	}
	return Policy{RefillPerSec: float64(limit) / 60.0, Burst: float64(burst)}
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter decides immediately whether a device may proceed. Implementations
// never block.
type Limiter interface {
	Allow(ctx context.Context, deviceID string) (Decision, error)
}

type bucket struct {
	tokens float64
	last   time.Time
}

// TokenBucketLimiter keeps one bucket per device in memory. Buckets are
// created lazily on first use and evicted once idle long enough to be full
// again; eviction is a memory optimization, not a behavioral contract.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	policy  Policy
	buckets map[string]*bucket
	sweepAt time.Time
	now     func() time.Time
}

func NewTokenBucketLimiter(policy Policy) *TokenBucketLimiter {
	policy = normalizePolicy(policy)
	return &TokenBucketLimiter{
		policy:  policy,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, deviceID string) (Decision, error) {
	if deviceID == "" {
		deviceID = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		idle := l.idleEvictionWindow()
		for k, b := range l.buckets {
			if now.Sub(b.last) > idle {
				delete(l.buckets, k)
			}
		}
		l.sweepAt = now.Add(idle)
	}

	b, ok := l.buckets[deviceID]
	if !ok {
		b = &bucket{tokens: l.policy.Burst, last: now}
		l.buckets[deviceID] = b
	} else {
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens = math.Min(l.policy.Burst, b.tokens+elapsed*l.policy.RefillPerSec)
		}
		b.last = now
	}

	if b.tokens < 1 {
		retry := time.Duration((1-b.tokens)/l.policy.RefillPerSec*1000) * time.Millisecond
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	b.tokens--
	return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
}

// A bucket idle long enough to refill completely carries no state worth
// keeping.
func (l *TokenBucketLimiter) idleEvictionWindow() time.Duration {
	secs := l.policy.Burst / l.policy.RefillPerSec
	if secs < 60 {
		secs = 60
	}
	return time.Duration(secs * float64(time.Second))
}
