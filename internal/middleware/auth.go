package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oidcgate/internal/config"
	"oidcgate/internal/oidc"
	"oidcgate/internal/session"
	"oidcgate/pkg/pathmatch"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Auth guards the configured protected paths: it resolves the session
// cookie, enforces the rolling and absolute windows, refreshes the
// provider tokens when they are about to lapse, and rolls the cookie
// forward on every authenticated request.
type Auth struct {
	cfg       *config.Config
	sessions  *session.Manager
	oidc      *oidc.Client
	protected pathmatch.Set
	logger    *slog.Logger
}

func NewAuth(cfg *config.Config, sessions *session.Manager, client *oidc.Client, logger *slog.Logger) *Auth {
	return &Auth{
		cfg:       cfg,
		sessions:  sessions,
		oidc:      client,
		protected: pathmatch.CompileSet(cfg.Server.ProtectedPaths),
		logger:    logger,
	}
}

func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.protected.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, _ := session.WithRequestCache(r.Context())
		r = r.WithContext(ctx)

		sess := a.sessions.Load(r)
		if sess == nil {
			a.logger.Debug("no usable session", "path", r.URL.Path)
			a.challenge(w, r)
			return
		}

		now := time.Now()
		if !sess.Fresh(a.cfg.Session.RollingDuration, a.cfg.Session.AbsoluteDuration, now) {
			a.logger.Debug("session outside its windows",
				"issued_at", sess.IssuedAt,
				"last_activity", sess.LastActivity,
			)
			a.sessions.Clear(ctx, w, r)
			a.challenge(w, r)
			return
		}

		if a.cfg.Session.AutoRefresh() &&
			oidc.ShouldRefresh(sess.ExpiresAt, sess.RefreshToken != "", a.cfg.Session.RefreshThreshold, now) {
			a.refreshTokens(ctx, sess, now)
		}

		// Rolling window: every authenticated request rewrites the cookie
		// with a fresh LastActivity.
		sess.LastActivity = now
		if err := a.sessions.Write(ctx, w, r, sess); err != nil {
			// The session was already valid for this request; serve it and
			// let the next request retry the write.
			a.logger.Error("failed to roll session cookie", "error", err)
		}

		// Authenticated responses carry identity-derived content.
		w.Header().Set("Cache-Control", "no-store")

		ctx = context.WithValue(ctx, sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// refreshTokens performs the implicit refresh. Failure is logged and
// ignored: the session simply runs out its natural lifetime.
func (a *Auth) refreshTokens(ctx context.Context, sess *session.Session, now time.Time) {
	tr, err := a.oidc.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		a.logger.Warn("implicit token refresh failed", "error", err)
		return
	}
	lifetime, source := oidc.ResolveExpiry(tr, nil, a.cfg.Session.FallbackTokenLifetime)
	sess.ExpiresAt = now.Add(lifetime)
	if tr.RefreshToken != "" {
		sess.RefreshToken = tr.RefreshToken
	}
	a.logger.Debug("tokens refreshed",
		"user_id", sess.User.ID,
		"expiry_source", string(source),
	)
}

// challenge answers an unauthenticated request: browsers get redirected
// into the login flow with the original URL preserved, API clients get a
// 401 with a JSON body.
func (a *Auth) challenge(w http.ResponseWriter, r *http.Request) {
	if AcceptsHTML(r) {
		http.Redirect(w, r, "/auth/login?return_to="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             "authentication_required",
		"error_description": "no valid session for this request",
	})
}

// AcceptsHTML reports whether the client is a browser navigation rather
// than an API call.
func AcceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// CurrentSession returns the authenticated session attached by Protect.
func CurrentSession(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	return s, ok
}
