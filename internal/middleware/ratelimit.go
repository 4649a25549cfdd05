package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a client may stay silent before its limiter is dropped.
const idleAfter = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   burst,
		now:     time.Now,
	}
}

func (ipl *ipLimiter) allow(ip string) bool {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	for k, c := range ipl.clients {
		if now.Sub(c.lastSeen) > idleAfter {
			delete(ipl.clients, k)
		}
	}

	c, ok := ipl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimit limits requests per client IP. Run it after chi's RealIP so
// RemoteAddr reflects the caller behind a proxy.
func RateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	il := newIPLimiter(r, burst)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !il.allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
