// Package web carries HTTP middleware shared by the API server.
package web

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	cleanupInterval = time.Minute
	clientTimeout   = 3 * time.Minute
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter applies a token bucket per client key (the remote IP). Refill
// is lazy: tokens accrue on access based on elapsed time.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate  float64 // tokens per second
	burst float64 // bucket capacity
}

// NewRateLimiter creates a limiter and starts its background cleanup.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
	go rl.cleanup()
	return rl
}

// Allow consumes one token for key, reporting whether the request may
// proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastRefill: time.Now()}
		rl.buckets[key] = b
	}

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(cleanupInterval)
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if time.Since(b.lastRefill) > clientTimeout {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the limit, answering 429 with the API's error
// envelope when a client is over budget.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error": map[string]string{
					"kind":    "rate_limited",
					"message": "too many execution requests; slow down",
				},
			})
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
