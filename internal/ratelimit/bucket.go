// Package ratelimit implements the per-key leaky-bucket rate governor:
// bucket refill/deduct, best-key selection within a group, and
// fallback to the default group. The formulas here follow the
// provider's published per-minute and per-hour request budgets; the
// concept is grounded on the leaky-bucket model in the original
// client's rate limiter, reworked around a single critical section per
// key rather than a separate limiter per timeframe.
package ratelimit

import (
	"sync"
	"time"
)

// Timeframe names the two bucket windows every key carries.
type Timeframe string

const (
	OneMinute Timeframe = "1min"
	OneHour   Timeframe = "1hour"
)

// bucketParams describes the capacity and refill rate for one timeframe.
// DigitalOcean publishes 250 requests/minute and 5000 requests/hour per
// token; see https://docs.digitalocean.com/reference/api/api-reference/#section/Introduction/Rate-Limit.
type bucketParams struct {
	capacity        float64
	refillPerSecond float64
}

var defaultParams = map[Timeframe]bucketParams{
	OneMinute: {capacity: 250, refillPerSecond: 250.0 / 60.0},
	OneHour:   {capacity: 5000, refillPerSecond: 5000.0 / 3600.0},
}

// bucket is a single leaky bucket. remaining is always kept in
// [0, capacity]; refill and deduction happen under the owning key's
// mutex, never independently.
type bucket struct {
	capacity        float64
	refillPerSecond float64
	remaining       float64
	lastUpdate      time.Time
}

func newBucket(p bucketParams, prefill float64, now time.Time) *bucket {
	r := prefill
	if r > p.capacity {
		r = p.capacity
	}
	if r < 0 {
		r = 0
	}
	return &bucket{
		capacity:        p.capacity,
		refillPerSecond: p.refillPerSecond,
		remaining:       r,
		lastUpdate:      now,
	}
}

// refill advances remaining to reflect elapsed wall time, without
// deducting anything. Safe to call any number of times; never
// decreases remaining.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed <= 0 {
		b.lastUpdate = now
		return
	}
	b.remaining += b.refillPerSecond * elapsed
	if b.remaining > b.capacity {
		b.remaining = b.capacity
	}
	b.lastUpdate = now
}

// tryDeduct refills then attempts to subtract 1.0. Returns false
// without deducting anything if the bucket cannot supply a full token.
func (b *bucket) tryDeduct(now time.Time) bool {
	b.refill(now)
	if b.remaining < 1.0 {
		return false
	}
	b.remaining -= 1.0
	return true
}

// snapshot returns the current remaining value after applying refill,
// without deducting. Used for observability gauges.
func (b *bucket) snapshot(now time.Time) float64 {
	b.refill(now)
	return b.remaining
}

// key holds the live bucket state for one API token. A key may belong
// to several groups; the bucket state lives here exactly once, keyed
// by token, so concurrent groups sharing a token see the same budget.
type key struct {
	mu      sync.Mutex
	token   string
	buckets map[Timeframe]*bucket
}

func newKey(token string, prefill float64, now time.Time) *key {
	buckets := make(map[Timeframe]*bucket, len(defaultParams))
	for tf, p := range defaultParams {
		buckets[tf] = newBucket(p, prefill, now)
	}
	return &key{token: token, buckets: buckets}
}

// minRemaining reports the smallest remaining value across this key's
// buckets after refill — the comparison key for best-key selection and
// the definition of "exceeded" (< 1.0).
func (k *key) minRemaining(now time.Time) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	min := -1.0
	for _, b := range k.buckets {
		v := b.snapshot(now)
		if min < 0 || v < min {
			min = v
		}
	}
	return min
}

// tryAcquire deducts 1.0 from every bucket if and only if every bucket
// can supply it; otherwise nothing is deducted.
func (k *key) tryAcquire(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, b := range k.buckets {
		b.refill(now)
	}
	for _, b := range k.buckets {
		if b.remaining < 1.0 {
			return false
		}
	}
	for _, b := range k.buckets {
		b.remaining -= 1.0
	}
	return true
}

// remainingByTimeframe reports the post-refill remaining value for
// every timeframe, used by the self-telemetry job to populate
// remaining_limits_by_key.
func (k *key) remainingByTimeframe(now time.Time) map[Timeframe]float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[Timeframe]float64, len(k.buckets))
	for tf, b := range k.buckets {
		out[tf] = b.snapshot(now)
	}
	return out
}
