package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
	"oidcgate/internal/httpclient"
	"oidcgate/internal/oidc"
	"oidcgate/internal/oidc/oidctest"
	"oidcgate/internal/store"
)

type fixture struct {
	idp       *oidctest.Provider
	srv       *httptest.Server
	cfg       *config.Config
	client    *http.Client
	userStore store.Store
}

// newFixture stands up the fake identity provider and the full handler
// stack on an httptest server, with an HTTP client that keeps cookies but
// never follows redirects so every hop can be asserted.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	idp := oidctest.New(t)
	logger := slog.New(slog.DiscardHandler)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{
			BaseURL:        srv.URL,
			ProtectedPaths: []string{"/**"},
			RateLimit:      config.RateLimitConfig{Rate: 1000, Burst: 1000},
		},
		OIDC: config.OIDCConfig{
			Issuer:             idp.Issuer(),
			ClientID:           "client-123",
			ClientSecret:       "secret-456",
			RedirectURI:        srv.URL + "/auth/callback",
			Scopes:             []string{"openid", "profile", "email"},
			ClockSkew:          time.Minute,
			PostLogoutRedirect: "/",
		},
		Session: config.SessionConfig{
			Mode:                  "stateless",
			CookieSecret:          "0123456789abcdef0123456789abcdef",
			CookieName:            "oidcgate_session",
			CookieMaxAge:          24 * time.Hour,
			RollingDuration:       time.Hour,
			AbsoluteDuration:      24 * time.Hour,
			StoreFallback:         "fail",
			RefreshThreshold:      5 * time.Minute,
			FallbackTokenLifetime: time.Hour,
		},
		Users: config.UsersConfig{
			IDClaim:      "sub",
			LookupFields: []string{"email"},
		},
		Cache: config.CacheConfig{Type: "memory"},
		Store: config.StoreConfig{Type: "memory"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	mem, err := cache.New(cfg.Cache)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	userStore, err := store.New(cfg.Store)
	require.NoError(t, err)

	client, err := oidc.NewClient(context.Background(), cfg.OIDC, cfg.Session.AutoRefresh(), httpclient.New(logger), logger)
	require.NoError(t, err)

	h, err := New(cfg, mem, userStore, client, logger).setupRoutes()
	require.NoError(t, err)
	handler = h

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &fixture{idp: idp, srv: srv, cfg: cfg, client: hc, userStore: userStore}
}

func (f *fixture) get(t *testing.T, rawURL string, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", rawURL, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// login walks the three redirect hops of the code flow and returns the
// callback response.
func (f *fixture) login(t *testing.T, returnTo string) *http.Response {
	t.Helper()
	resp := f.get(t, f.srv.URL+"/auth/login?return_to="+url.QueryEscape(returnTo), "text/html")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	authURL := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(authURL, f.idp.Issuer()), "expected redirect to provider, got %s", authURL)

	resp = f.get(t, authURL, "text/html")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	callbackURL := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(callbackURL, f.srv.URL), "expected redirect back, got %s", callbackURL)

	return f.get(t, callbackURL, "text/html")
}

func (f *fixture) whoami(t *testing.T) (int, map[string]any) {
	t.Helper()
	resp := f.get(t, f.srv.URL+"/app", "application/json")
	var body map[string]any
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestLoginFlow(t *testing.T) {
	for _, mode := range []string{"stateless", "store"} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) { c.Session.Mode = mode })

			resp := f.login(t, "/app")
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/app", resp.Header.Get("Location"))

			status, body := f.whoami(t)
			require.Equal(t, http.StatusOK, status)
			u := body["user"].(map[string]any)
			assert.Equal(t, "subject-1", u["id"])
			assert.Equal(t, "user@example.com", u["email"])
			assert.Equal(t, false, body["virtual"])

			// The login auto-created a user record.
			got, err := f.userStore.Get(context.Background(), "subject-1")
			require.NoError(t, err)
			assert.Equal(t, "user@example.com", got.Email)
		})
	}
}

func TestAuthorizationRequestShape(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/auth/login", "text/html")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	u, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, f.srv.URL+"/auth/callback", q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, q.Get("nonce"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

// A second delivery of the same callback must fail: login state is
// single-use.
func TestCallbackReplayRejected(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/auth/login", "text/html")
	authURL := resp.Header.Get("Location")
	resp = f.get(t, authURL, "text/html")
	callbackURL := resp.Header.Get("Location")

	first := f.get(t, callbackURL, "text/html")
	assert.Equal(t, http.StatusFound, first.StatusCode)

	replay := f.get(t, callbackURL, "application/json")
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
}

func TestCallbackWithoutLoginState(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, f.srv.URL+"/auth/callback?code=x&state=y", "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackStateParameterMismatch(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/auth/login", "text/html")
	authURL := resp.Header.Get("Location")
	resp = f.get(t, authURL, "text/html")
	callbackURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	q := callbackURL.Query()
	q.Set("state", "tampered")
	callbackURL.RawQuery = q.Encode()

	final := f.get(t, callbackURL.String(), "application/json")
	assert.Equal(t, http.StatusBadRequest, final.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(final.Body).Decode(&body))
	assert.Equal(t, "state_mismatch", body["error"])
}

func TestCallbackProviderError(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/auth/login", "text/html")
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")

	final := f.get(t, f.srv.URL+"/auth/callback?error=access_denied&state="+state, "application/json")
	assert.Equal(t, http.StatusUnauthorized, final.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(final.Body).Decode(&body))
	assert.Equal(t, "provider_error", body["error"])
}

func TestNonceMismatchRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.idp.NonceOverride = "evil-nonce"

	resp := f.login(t, "/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, _ := f.whoami(t)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIssuerMismatchRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.idp.IssuerOverride = "https://evil.example.com"

	resp := f.login(t, "/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenEndpointRejection(t *testing.T) {
	f := newFixture(t, nil)
	f.idp.TokenError = "invalid_client"

	resp := f.login(t, "/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMissingExpiresInFallsBackToIDTokenExp(t *testing.T) {
	f := newFixture(t, nil)
	f.idp.OmitExpiresIn = true

	resp := f.login(t, "/app")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	status, body := f.whoami(t)
	require.Equal(t, http.StatusOK, status)
	expiresAt, err := time.Parse(time.RFC3339, body["expires_at"].(string))
	require.NoError(t, err)
	// The ID token carried a one-hour exp.
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Minute)
}

func TestImplicitRefresh(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		// Threshold beyond the provider's one-hour lifetime, so the very
		// next authenticated request refreshes.
		c.Session.RefreshThreshold = 2 * time.Hour
	})
	// Refreshed tokens live three hours, which is both observable in the
	// session's expiry and far enough out to make a second refresh
	// ineligible.
	f.idp.RefreshExpiresIn = 3 * 3600

	resp := f.login(t, "/app")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	status, body := f.whoami(t)
	require.Equal(t, http.StatusOK, status)
	expiresAt, err := time.Parse(time.RFC3339, body["expires_at"].(string))
	require.NoError(t, err)
	// The login grant gave one hour; the refresh moved the expiry out.
	assert.WithinDuration(t, time.Now().Add(3*time.Hour), expiresAt, 5*time.Minute)

	status, _ = f.whoami(t)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, f.idp.RefreshGrants)
}

func TestPKCEVerifierMismatchRejected(t *testing.T) {
	f := newFixture(t, nil)
	// The provider holds a challenge the client's verifier cannot answer,
	// as after an authorization-request interception.
	f.idp.ChallengeOverride = oidc.ChallengeS256("some-other-verifier")

	resp := f.login(t, "/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, _ := f.whoami(t)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newFixture(t, nil)

	out := f.get(t, f.srv.URL+"/auth/logout", "text/html")
	assert.Equal(t, http.StatusFound, out.StatusCode)
	assert.Equal(t, "/", out.Header.Get("Location"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.login(t, "/app")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	status, _ := f.whoami(t)
	require.Equal(t, http.StatusOK, status)

	out := f.get(t, f.srv.URL+"/auth/logout", "text/html")
	assert.Equal(t, http.StatusFound, out.StatusCode)
	assert.Equal(t, "/", out.Header.Get("Location"))

	status, _ = f.whoami(t)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogoutChainsToProvider(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.OIDC.IDPLogout = true })

	resp := f.login(t, "/")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	out := f.get(t, f.srv.URL+"/auth/logout", "text/html")
	require.Equal(t, http.StatusFound, out.StatusCode)

	loc, err := url.Parse(out.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Header.Get("Location"), f.idp.Issuer()+"/logout"))
	assert.Equal(t, f.srv.URL+"/", loc.Query().Get("post_logout_redirect_uri"))
}

func TestVirtualSessionWithoutStore(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Store.Type = "none" })

	resp := f.login(t, "/app")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	status, body := f.whoami(t)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["virtual"])
	u := body["user"].(map[string]any)
	assert.Equal(t, "subject-1", u["id"])
}

func TestAutoCreateDisabledForbidsUnknownUsers(t *testing.T) {
	off := false
	f := newFixture(t, func(c *config.Config) { c.Users.AutoCreate = &off })

	resp := f.login(t, "/")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReturnToOpenRedirectBlocked(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.login(t, "https://evil.example.com/phish")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/health", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, f.srv.URL+"/health", "")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestExistingSessionSkipsProviderRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.login(t, "/app")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	again := f.get(t, f.srv.URL+"/auth/login?return_to=%2Fapp", "text/html")
	assert.Equal(t, http.StatusFound, again.StatusCode)
	assert.Equal(t, "/app", again.Header.Get("Location"))
}
