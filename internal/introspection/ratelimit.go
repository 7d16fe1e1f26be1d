package introspection

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// perAddressLimiter hands out one token bucket per remote address,
// created lazily on first use.
type perAddressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newPerAddressLimiter(requestsPerSecond float64, burst int) *perAddressLimiter {
	return &perAddressLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *perAddressLimiter) limiterFor(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[addr]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[addr] = limiter
	}
	return limiter
}

// rateLimitMiddleware throttles the scrape-heavy Prometheus routes
// per remote address, since these are the only introspection routes a
// misconfigured scraper could hit hard enough to matter.
func rateLimitMiddleware(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := newPerAddressLimiter(requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.limiterFor(r.RemoteAddr).Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
