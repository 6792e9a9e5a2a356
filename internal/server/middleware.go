package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// limiterIdleTTL is how long an idle client's bucket is kept. A bucket
// refills within a minute, so dropping it later loses nothing.
const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter holds one token bucket per client IP.
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		l.sweep(now)
	}
	c, ok := l.limiters[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// sweep drops buckets idle for longer than limiterIdleTTL. Callers hold mu.
func (l *ipRateLimiter) sweep(now time.Time) {
	for ip, c := range l.limiters {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// limitPosts rejects POST requests over the per-IP budget with 429.
func (l *ipRateLimiter) limitPosts(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			if !l.get(ip).Allow() {
				logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Trop de requêtes, réessayez plus tard.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the peer address. RealIP rewrites RemoteAddr only when the
// server trusts its proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
