package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"seaescrow/observability"
)

const visitorIdleTTL = 5 * time.Minute

type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client and limit key.
type RateLimiter struct {
	logger     *slog.Logger
	limits     map[string]RateLimit
	trustProxy bool
	mu         sync.Mutex
	visitors   map[string]*visitor
	lastSweep  time.Time
	clockNow   func() time.Time
}

// NewRateLimiter builds a limiter. trustProxy honours X-Real-IP and
// X-Forwarded-For when identifying clients.
func NewRateLimiter(limits map[string]RateLimit, trustProxy bool, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:     logger,
		limits:     limits,
		trustProxy: trustProxy,
		visitors:   make(map[string]*visitor),
		clockNow:   time.Now,
	}
}

// Allow consumes one token for the request's client under key. Unknown keys
// are not limited.
func (r *RateLimiter) Allow(key string, req *http.Request) bool {
	if r == nil {
		return true
	}
	limit, ok := r.limits[key]
	if !ok || limit.RatePerSecond <= 0 {
		return true
	}
	client := ClientID(req, r.trustProxy)
	if r.obtainLimiter(key+"|"+client, limit).Allow() {
		return true
	}
	observability.ModuleMetrics().RecordThrottle(key, "rate_limit")
	r.logger.Debug("request throttled", slog.String("limit", key), slog.String("client", client))
	return false
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit) *rate.Limiter {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) > visitorIdleTTL {
		for key, v := range r.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(r.visitors, key)
			}
		}
		r.lastSweep = now
	}
	if v, ok := r.visitors[id]; ok {
		v.lastSeen = now
		return v.limiter
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	r.visitors[id] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

// ClientID identifies the caller by remote host, or by proxy headers when
// trustProxy is set.
func ClientID(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if parsed := net.ParseIP(first); parsed != nil {
				return parsed.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
