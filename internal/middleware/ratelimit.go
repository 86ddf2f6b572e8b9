package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"oidcgate/internal/config"
)

// RateLimit throttles requests per client address. It fronts the /auth/*
// routes, where an attacker probing the callback is the concern; idle
// limiter entries are dropped after an hour.
type RateLimit struct {
	cfg    config.RateLimitConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimit(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimit {
	return &RateLimit{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*clientLimiter),
	}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	if !rl.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.limiterFor(ip).Allow() {
			rl.logger.Warn("rate limit exceeded", "client", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) enabled() bool {
	if rl.cfg.Enabled == nil {
		return true
	}
	return *rl.cfg.Enabled
}

func (rl *RateLimit) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now

	if len(rl.clients) > 1000 {
		for k, v := range rl.clients {
			if now.Sub(v.lastSeen) > time.Hour {
				delete(rl.clients, k)
			}
		}
	}
	return cl.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
