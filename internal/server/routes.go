package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"oidcgate/internal/handlers"
	"oidcgate/internal/middleware"
	"oidcgate/internal/proxy"
	"oidcgate/internal/session"
	"oidcgate/internal/user"
)

func (s *Server) setupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()

	codec, err := session.NewCodec(s.cfg.Session, s.cache, s.logger)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(s.cfg.Session, codec, s.logger)
	states := session.NewStateStore(s.cache)

	var provisioner *user.Provisioner
	if s.store != nil {
		provisioner = user.New(s.store, s.cfg.Users, s.hooks, s.logger)
	}

	authMW := middleware.NewAuth(s.cfg, sessions, s.oidc, s.logger)
	rateLimit := middleware.NewRateLimit(s.cfg.Server.RateLimit, s.logger)

	login := handlers.NewLoginHandler(s.cfg, s.oidc, states, sessions, s.logger)
	callback := handlers.NewCallbackHandler(s.cfg, s.oidc, states, sessions, provisioner, s.events, s.logger)
	logout := handlers.NewLogoutHandler(s.cfg, s.oidc, sessions, s.logger)
	health := handlers.NewHealthHandler(s.cfg, s.cache, s.store, s.logger)

	mux.Handle("/auth/login", rateLimit.Limit(login))
	mux.Handle(s.callbackPath(), rateLimit.Limit(callback))
	mux.Handle("/auth/logout", logout)
	mux.Handle("/health", health)

	if s.cfg.Proxy.Upstream != "" {
		rp, err := proxy.NewReverseProxy(s.cfg.Proxy, s.logger)
		if err != nil {
			return nil, err
		}
		mux.Handle("/", authMW.Protect(rp))
	} else {
		// Without an upstream the protected surface is a whoami endpoint,
		// useful standalone and behind auth_request-style setups.
		mux.Handle("/", authMW.Protect(http.HandlerFunc(whoami)))
	}

	handler := middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			addSecurityHeaders(mux),
		),
	)
	return handler, nil
}

// callbackPath follows the configured redirect_uri so the route and the
// registration at the provider cannot drift apart.
func (s *Server) callbackPath() string {
	if u, err := url.Parse(s.cfg.OIDC.RedirectURI); err == nil && u.Path != "" && u.Path != "/" {
		return u.Path
	}
	return "/auth/callback"
}

func whoami(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.CurrentSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user":       sess.User,
		"issued_at":  sess.IssuedAt,
		"expires_at": sess.ExpiresAt,
		"virtual":    sess.IsVirtual,
	})
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
