// Package ratelimit provides a per-merchant token bucket registry for outbound
// catalog/commerce API calls. The registry is an explicit object scoped to the
// process; tests get isolation by constructing a fresh instance.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Registry holds one token bucket per merchant.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	ratePerSec float64
	burst      int
	now        func() time.Time
}

func NewRegistry(ratePerSec float64, burst int) *Registry {
	return &Registry{
		buckets:    make(map[string]*bucket),
		ratePerSec: ratePerSec,
		burst:      burst,
		now:        time.Now,
	}
}

func (r *Registry) bucketFor(merchantID string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[merchantID]
	if !ok {
		b = &bucket{tokens: float64(r.burst), lastRefill: r.now()}
		r.buckets[merchantID] = b
	}
	return b
}

// tryTake attempts to consume one token, returning the wait until the next
// token becomes available when the bucket is empty.
func (r *Registry) tryTake(b *bucket) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * r.ratePerSec
	if b.tokens > float64(r.burst) {
		b.tokens = float64(r.burst)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	deficit := 1 - b.tokens
	return false, time.Duration(deficit / r.ratePerSec * float64(time.Second))
}

// Acquire blocks until a token is available for the merchant, the context is
// done, or maxWait elapses. A false return is a soft failure: callers surface
// a "try again" response, not an error page.
func (r *Registry) Acquire(ctx context.Context, merchantID string, maxWait time.Duration) bool {
	b := r.bucketFor(merchantID)
	deadline := r.now().Add(maxWait)

	for {
		ok, wait := r.tryTake(b)
		if ok {
			return true
		}
		if r.now().Add(wait).After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// Allow is a non-blocking Acquire.
func (r *Registry) Allow(merchantID string) bool {
	ok, _ := r.tryTake(r.bucketFor(merchantID))
	return ok
}
