// ratelimit.go - Token bucket rate limiting for the HTTP surface.
package main

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate int // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a bucket with the given burst and refill rate.
func NewRateLimiter(maxTokens, refillRate int) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	refill := int(elapsed.Seconds() * float64(rl.refillRate))
	if refill > 0 {
		rl.tokens += refill
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// ClientRateLimiter keeps one bucket per client address.
type ClientRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*RateLimiter
	maxTokens  int
	refillRate int
}

// NewClientRateLimiter creates a per-client limiter.
func NewClientRateLimiter(maxTokens, refillRate int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// Allow checks the bucket for the given client.
func (crl *ClientRateLimiter) Allow(client string) bool {
	crl.mu.Lock()
	limiter, ok := crl.limiters[client]
	if !ok {
		limiter = NewRateLimiter(crl.maxTokens, crl.refillRate)
		crl.limiters[client] = limiter
	}
	crl.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (crl *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !crl.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
