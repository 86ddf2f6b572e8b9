package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidcgate/internal/cache"
)

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", name)
	return nil
}

func TestManagerRollingWriteKeepsStoreIdentifier(t *testing.T) {
	mem := cache.NewMemory()
	t.Cleanup(func() { mem.Close() })

	cfg := testSessionConfig("store")
	codec, err := NewCodec(cfg, mem, discard())
	require.NoError(t, err)
	m := NewManager(cfg, codec, discard())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	require.NoError(t, m.Rotate(context.Background(), rec, req, testSession()))
	login := sessionCookie(t, rec, cfg.CookieName)

	// A rolling rewrite keeps the identifier: no superseded record is left
	// behind for the cookie max-age to keep alive.
	req = httptest.NewRequest("GET", "/app", nil)
	req.AddCookie(login)
	rec = httptest.NewRecorder()
	s := m.Load(req)
	require.NotNil(t, s)
	s.LastActivity = time.Now().Add(time.Minute)
	require.NoError(t, m.Write(context.Background(), rec, req, s))
	rolled := sessionCookie(t, rec, cfg.CookieName)
	assert.Equal(t, login.Value, rolled.Value)

	// Logout after any number of rolls destroys the record the login-time
	// cookie points at.
	req = httptest.NewRequest("GET", "/auth/logout", nil)
	req.AddCookie(rolled)
	m.Clear(context.Background(), httptest.NewRecorder(), req)
	assert.Nil(t, codec.Decode(context.Background(), login.Value))
}

func TestManagerRotateMintsFreshIdentifier(t *testing.T) {
	mem := cache.NewMemory()
	t.Cleanup(func() { mem.Close() })

	cfg := testSessionConfig("store")
	codec, err := NewCodec(cfg, mem, discard())
	require.NoError(t, err)
	m := NewManager(cfg, codec, discard())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	require.NoError(t, m.Rotate(context.Background(), rec, req, testSession()))
	first := sessionCookie(t, rec, cfg.CookieName)

	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(first)
	rec = httptest.NewRecorder()
	require.NoError(t, m.Rotate(context.Background(), rec, req, testSession()))
	second := sessionCookie(t, rec, cfg.CookieName)

	assert.NotEqual(t, first.Value, second.Value)
	// The superseded identity is dead, not merely replaced.
	assert.Nil(t, codec.Decode(context.Background(), first.Value))
	assert.NotNil(t, codec.Decode(context.Background(), second.Value))
}

func TestManagerClearWithoutCookie(t *testing.T) {
	mem := cache.NewMemory()
	t.Cleanup(func() { mem.Close() })

	cfg := testSessionConfig("store")
	codec, err := NewCodec(cfg, mem, discard())
	require.NoError(t, err)
	m := NewManager(cfg, codec, discard())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/auth/logout", nil)
	m.Clear(context.Background(), rec, req)
	// Clearing an absent session is a no-op apart from the expiry cookie.
	c := sessionCookie(t, rec, cfg.CookieName)
	assert.Equal(t, -1, c.MaxAge)
	assert.Empty(t, c.Value)
}
