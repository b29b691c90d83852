package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
)

// RateLimiter applies a sliding-window limit per client IP. The window is
// timestamp-based rather than a fixed-bucket counter so a burst straddling
// a window boundary cannot double the effective limit.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	limit   int
	window  time.Duration
}

type slidingWindow struct {
	timestamps []time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*slidingWindow),
		limit:   limit,
		window:  window,
	}
}

// allow records one request for key and reports whether it fits the limit,
// along with the remaining budget and the window reset time.
func (rl *RateLimiter) allow(key string, now time.Time) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	sw := rl.windows[key]
	if sw == nil {
		sw = &slidingWindow{}
		rl.windows[key] = sw
	}

	cutoff := now.Add(-rl.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]

	if len(sw.timestamps) >= rl.limit {
		return false, 0, sw.timestamps[0].Add(rl.window)
	}

	sw.timestamps = append(sw.timestamps, now)
	return true, rl.limit - len(sw.timestamps), sw.timestamps[0].Add(rl.window)
}

// Handler limits requests per client IP, answering 429 with standard
// X-RateLimit headers once the window is exhausted.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt := rl.allow(clientIP(r), time.Now())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
