// Package proxy forwards authenticated requests to the configured
// upstream, translating the session's user into identity headers.
package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"oidcgate/internal/config"
	"oidcgate/internal/middleware"
)

// ReverseProxy is the protected surface behind the authentication layer.
// It only ever sees requests that passed the auth middleware.
type ReverseProxy struct {
	proxy  *httputil.ReverseProxy
	cfg    config.ProxyConfig
	logger *slog.Logger
}

func NewReverseProxy(cfg config.ProxyConfig, logger *slog.Logger) (*ReverseProxy, error) {
	upstreamURL, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(upstreamURL)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		if !cfg.PreserveHost {
			req.Host = upstreamURL.Host
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			"error", err,
			"upstream", upstreamURL.String(),
			"path", r.URL.Path,
		)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	return &ReverseProxy{
		proxy:  proxy,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (rp *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.CurrentSession(r.Context())
	if !ok {
		rp.logger.Error("no session in context on a proxied request")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	SetIdentityHeaders(r, sess, rp.cfg.ClaimHeaders)

	rp.logger.Debug("proxying request",
		"path", r.URL.Path,
		"upstream", rp.cfg.Upstream,
		"user_id", sess.User.ID,
	)
	rp.proxy.ServeHTTP(w, r)
}
