package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidcgate/internal/config"
	"oidcgate/internal/session"
	"oidcgate/pkg/security"
)

func authFixture(t *testing.T, protected []string) (*Auth, *session.Manager, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{ProtectedPaths: protected},
		Session: config.SessionConfig{
			Mode:             "stateless",
			CookieSecret:     "0123456789abcdef0123456789abcdef",
			CookieName:       "oidcgate_session",
			CookieMaxAge:     24 * time.Hour,
			RollingDuration:  time.Hour,
			AbsoluteDuration: 24 * time.Hour,
			StoreFallback:    "fail",
			RefreshThreshold: 5 * time.Minute,
		},
	}
	logger := slog.New(slog.DiscardHandler)
	codec, err := session.NewCodec(cfg.Session, nil, logger)
	require.NoError(t, err)
	manager := session.NewManager(cfg.Session, codec, logger)
	return NewAuth(cfg, manager, nil, logger), manager, cfg
}

func encodeSession(t *testing.T, m *session.Manager, s *session.Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	require.NoError(t, m.Write(context.Background(), rec, req, s))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func liveSession() *session.Session {
	now := time.Now()
	return &session.Session{
		IssuedAt:     now.Add(-time.Minute),
		ExpiresAt:    now.Add(time.Hour),
		LastActivity: now.Add(-time.Minute),
		User:         session.User{ID: "user-1", Email: "user@example.com"},
	}
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestProtectSkipsUnprotectedPaths(t *testing.T) {
	auth, _, _ := authFixture(t, []string{"/app/**"})
	var hit bool

	req := httptest.NewRequest("GET", "/public", nil)
	rec := httptest.NewRecorder()
	auth.Protect(okHandler(&hit)).ServeHTTP(rec, req)

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectRedirectsBrowsers(t *testing.T) {
	auth, _, _ := authFixture(t, []string{"/**"})
	var hit bool

	req := httptest.NewRequest("GET", "/app/page?x=1", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	auth.Protect(okHandler(&hit)).ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?return_to=%2Fapp%2Fpage%3Fx%3D1", rec.Header().Get("Location"))
}

func TestProtectAnswers401ForAPIClients(t *testing.T) {
	auth, _, _ := authFixture(t, []string{"/**"})
	var hit bool

	req := httptest.NewRequest("GET", "/api/items", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	auth.Protect(okHandler(&hit)).ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "authentication_required", body["error"])
}

func TestProtectAcceptsLiveSession(t *testing.T) {
	auth, manager, _ := authFixture(t, []string{"/**"})

	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := CurrentSession(r.Context())
		require.True(t, ok)
		gotUser = sess.User.ID
	})

	req := httptest.NewRequest("GET", "/app", nil)
	req.AddCookie(encodeSession(t, manager, liveSession()))
	rec := httptest.NewRecorder()
	auth.Protect(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	// The cookie is rolled forward on every authenticated request.
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestProtectRollingWindowExpiry(t *testing.T) {
	auth, manager, cfg := authFixture(t, []string{"/**"})

	stale := liveSession()
	stale.LastActivity = time.Now().Add(-cfg.Session.RollingDuration - time.Minute)

	var hit bool
	req := httptest.NewRequest("GET", "/app", nil)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(encodeSession(t, manager, stale))
	rec := httptest.NewRecorder()
	auth.Protect(okHandler(&hit)).ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusFound, rec.Code)

	// The stale cookie is actively expired.
	var deleted bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == cfg.Session.CookieName && c.MaxAge < 0 {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestProtectRejectsGarbageCookie(t *testing.T) {
	auth, _, cfg := authFixture(t, []string{"/**"})
	var hit bool

	req := httptest.NewRequest("GET", "/app", nil)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(security.NewCookie(cfg.Session.CookieName, "not-a-session", security.CookieOptions{}))
	rec := httptest.NewRecorder()
	auth.Protect(okHandler(&hit)).ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAcceptsHTML(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.False(t, AcceptsHTML(req))

	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	assert.True(t, AcceptsHTML(req))

	req.Header.Set("Accept", "application/json")
	assert.False(t, AcceptsHTML(req))
}
