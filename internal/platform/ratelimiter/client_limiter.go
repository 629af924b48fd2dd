// Package ratelimiter throttles the payment endpoints per client. Every client
// id gets its own token bucket; buckets idle for longer than IdleTTL are
// dropped on the next sweep.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type Config struct {
	PerSecond float64
	Burst     int
	IdleTTL   time.Duration
}

// ClientLimiter is safe for concurrent use. A nil *ClientLimiter allows everything.
type ClientLimiter struct {
	cfg Config

	mu        sync.Mutex
	buckets   map[int]*bucket
	nextSweep time.Time
}

type bucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// NewClientLimiter returns nil, meaning no limiting, unless both the rate and
// the burst are positive.
func NewClientLimiter(cfg Config) *ClientLimiter {
	if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
		return nil
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &ClientLimiter{cfg: cfg, buckets: make(map[int]*bucket)}
}

// Allow takes one token from clientID's bucket. When the bucket is empty it
// reports false and how long until the next token is due.
func (l *ClientLimiter) Allow(clientID int, now time.Time) (bool, time.Duration) {
	if l == nil || clientID <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		l.sweep(now)
	}
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[clientID] = b
	}
	b.seen = now

	res := b.tokens.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		// hand the token back; the caller is rejected, not queued
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (l *ClientLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.cfg.IdleTTL)
	for id, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
	l.nextSweep = now.Add(l.cfg.IdleTTL)
}

// Tracked returns the number of clients with a live bucket.
func (l *ClientLimiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
