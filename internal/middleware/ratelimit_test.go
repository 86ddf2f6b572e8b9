package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"oidcgate/internal/config"
)

func TestRateLimitThrottlesPerClient(t *testing.T) {
	rl := NewRateLimit(config.RateLimitConfig{Rate: 1, Burst: 2}, slog.New(slog.DiscardHandler))
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	status := func(addr string) int {
		req := httptest.NewRequest("GET", "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, status("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, status("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, status("10.0.0.1:1002"))
	// Other clients are unaffected.
	assert.Equal(t, http.StatusOK, status("10.0.0.2:1000"))
}

func TestRateLimitDisabled(t *testing.T) {
	off := false
	rl := NewRateLimit(config.RateLimitConfig{Enabled: &off, Rate: 1, Burst: 1}, slog.New(slog.DiscardHandler))
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
