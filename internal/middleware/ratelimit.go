package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eventos/apiserver/config"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 15 * time.Minute
	limiterSweepInterval = 5 * time.Minute
)

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	limit rate.Limit
	burst int
	retry time.Duration
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginRateLimiter returns nil when the configured rate is zero or negative.
func NewLoginRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.LoginPerMinute <= 0 {
		return nil
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = 1
	}
	interval := time.Minute / time.Duration(cfg.LoginPerMinute)
	return &RateLimiter{
		limit:     rate.Every(interval),
		burst:     burst,
		retry:     interval,
		now:       time.Now,
		limiters:  make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
// A nil RateLimiter lets every request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			seconds := int(math.Ceil(l.retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Too many login attempts, try again later",
				"name":  "RateLimitError",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterSweepInterval {
		for k, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// clientKey uses RemoteAddr, which chi's RealIP middleware has already
// replaced with the forwarded client address when one was sent.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
