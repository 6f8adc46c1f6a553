// internal/ratelimit/headers.go
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxKeys bounds the limiter table; past it the table is reset.
const maxKeys = 10000

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// HeaderLimiter is a per-key token bucket that reports its state in
// X-RateLimit headers.
type HeaderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	limit    int
}

// NewHeaderLimiter creates a limiter allowing ratePerSecond sustained
// requests per key with the given burst.
func NewHeaderLimiter(ratePerSecond float64, burst int) *HeaderLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HeaderLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(ratePerSecond),
		limit:    burst,
	}
}

func (hl *HeaderLimiter) limiter(key string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if len(hl.limiters) >= maxKeys {
		hl.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := hl.limiters[key]
	if !ok {
		l = rate.NewLimiter(hl.rate, hl.limit)
		hl.limiters[key] = l
	}
	return l
}

// Allow consumes a token for key.
func (hl *HeaderLimiter) Allow(key string) bool {
	return hl.limiter(key).Allow()
}

// GetInfo returns the current state of key's bucket.
func (hl *HeaderLimiter) GetInfo(key string) RateLimitInfo {
	remaining := int(hl.limiter(key).Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitInfo{
		Limit:     hl.limit,
		Remaining: remaining,
		Reset:     time.Now().Add(time.Second).Unix(),
	}
}

// Middleware charges each request to key(r) and answers 429 when the
// bucket is empty.
func (hl *HeaderLimiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			allowed := hl.Allow(k)
			info := hl.GetInfo(k)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset, 10))

			if !allowed {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitInfo contains rate limit information
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}
