// Package ratelimit provides per-key token bucket limiting for the
// HTTP API.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter maintains one token bucket per key (client IP). Buckets for
// keys not seen for idleAfter are dropped by a background sweep so the
// map stays bounded by the active client set.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int

	sweepEvery time.Duration
	idleAfter  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLimiter creates a limiter allowing rps requests per second with
// the given burst per key
func NewLimiter(rps float64, burst int) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		entries:    make(map[string]*entry),
		rps:        rate.Limit(rps),
		burst:      burst,
		sweepEvery: time.Minute,
		idleAfter:  10 * time.Minute,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the background sweep of idle buckets
func (l *Limiter) Start() {
	l.wg.Add(1)
	go l.sweepLoop()
}

// Stop stops the background sweep
func (l *Limiter) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(l.idleAfter)
		}
	}
}

// Allow reports whether a request for the given key may proceed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Cleanup drops buckets idle longer than maxAge
func (l *Limiter) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Middleware wraps a handler with rate limiting keyed by keyFunc
func (l *Limiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFunc(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc extracts the client address as the rate limit key
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
