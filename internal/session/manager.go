package session

import (
	"context"
	"log/slog"
	"net/http"

	"oidcgate/internal/config"
	"oidcgate/pkg/security"
)

// Manager ties the codec to the actual cookie traffic: it reads the
// (possibly chunked) session cookie off requests and writes or clears it
// on responses, with consistent attributes everywhere.
type Manager struct {
	cfg    config.SessionConfig
	codec  Codec
	logger *slog.Logger
}

// NewManager builds a Manager around the configured codec.
func NewManager(cfg config.SessionConfig, codec Codec, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, codec: codec, logger: logger}
}

// Load reads and decodes the session cookie. Returns nil when the cookie
// is absent or does not verify. Decoding goes through the request cache
// when one is attached, so a request never decodes twice.
func (m *Manager) Load(r *http.Request) *Session {
	token := security.GetChunked(r, m.cfg.CookieName)
	if token == "" {
		return nil
	}
	if rc, ok := RequestCacheFrom(r.Context()); ok {
		return rc.Decode(r.Context(), m.codec, token)
	}
	return m.codec.Decode(r.Context(), token)
}

// Write rewrites the session under the identity the browser already
// holds and sets the cookie, chunking as needed. In store mode the
// existing record is overwritten in place; the identifier only changes
// through Rotate.
func (m *Manager) Write(ctx context.Context, w http.ResponseWriter, r *http.Request, s *Session) error {
	current := security.GetChunked(r, m.cfg.CookieName)
	token, err := m.codec.Update(ctx, current, s)
	if err != nil {
		return err
	}
	security.SetChunked(w, m.cfg.CookieName, token, m.CookieOptions(r))
	if rc, ok := RequestCacheFrom(ctx); ok {
		rc.Replace(token, s)
	}
	return nil
}

// Rotate destroys the backing record of the current cookie (a no-op for
// self-contained tokens) and writes the session under a fresh identity.
// Used at login completion against session fixation.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, s *Session) error {
	if old := security.GetChunked(r, m.cfg.CookieName); old != "" {
		if err := m.codec.Destroy(ctx, old); err != nil {
			m.logger.Warn("failed to destroy previous session record", "error", err)
		}
	}
	token, err := m.codec.Encode(ctx, s)
	if err != nil {
		return err
	}
	security.SetChunked(w, m.cfg.CookieName, token, m.CookieOptions(r))
	if rc, ok := RequestCacheFrom(ctx); ok {
		rc.Replace(token, s)
	}
	return nil
}

// Clear destroys the backing record and expires the cookie and all its
// chunks.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if token := security.GetChunked(r, m.cfg.CookieName); token != "" {
		if err := m.codec.Destroy(ctx, token); err != nil {
			m.logger.Warn("failed to destroy session record", "error", err)
		}
	}
	security.DeleteChunked(w, r, m.cfg.CookieName, m.CookieOptions(r))
	if rc, ok := RequestCacheFrom(ctx); ok {
		rc.Replace("", nil)
	}
}

// CookieOptions returns the attribute set for the session cookie on this
// request.
func (m *Manager) CookieOptions(r *http.Request) security.CookieOptions {
	return security.CookieOptions{
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		MaxAge:   int(m.cfg.CookieMaxAge.Seconds()),
		Secure:   RequestIsSecure(r),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// RequestIsSecure reports whether the request arrived over TLS, directly
// or via a terminating proxy.
func RequestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
