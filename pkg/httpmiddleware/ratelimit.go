package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window holds the request counts of the current and previous fixed window.
// The sliding estimate weights the previous count by its remaining overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max     int
	size    time.Duration
	mu      sync.Mutex
	clients map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		max:     cfg.Max,
		size:    cfg.Window,
		clients: make(map[string]*window),
	}
}

// take records a request for key at now. It reports whether the request is
// allowed, how many requests remain and when the current window ends.
func (l *limiter) take(key string, now time.Time) (allowed bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	w, ok := l.clients[key]
	switch {
	case !ok:
		w = &window{start: start}
		l.clients[key] = w
	case start.Sub(w.start) >= 2*l.size:
		*w = window{start: start}
	case start.After(w.start):
		*w = window{start: start, prev: w.curr}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.size)
	used := w.prev*overlap + w.curr
	reset = w.start.Add(l.size)
	if used >= float64(l.max) {
		return false, 0, reset
	}

	w.curr++
	return true, max(0, l.max-int(math.Ceil(used+1))), reset
}

// evict drops clients idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.clients {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.clients, key)
		}
	}
}

// RateLimit returns a middleware that answers 429 Too Many Requests once a
// client exceeds cfg.Max requests in the sliding window. Responses carry
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
// Idle clients are never evicted; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle
// clients every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return rateLimit(cfg, l)
}

func rateLimit(cfg RateLimitConfig, l *limiter) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			allowed, remaining, reset := l.take(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retry := max(0, int(math.Ceil(reset.Sub(now).Seconds())))
				h.Set("Retry-After", strconv.Itoa(retry))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
