package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"oidcgate/internal/config"
	"oidcgate/internal/oidc"
	"oidcgate/internal/session"
)

// LogoutHandler tears the session down locally and, when configured,
// chains into the provider's end-session endpoint.
type LogoutHandler struct {
	cfg      *config.Config
	oidc     *oidc.Client
	sessions *session.Manager
	logger   *slog.Logger
}

func NewLogoutHandler(cfg *config.Config, client *oidc.Client, sessions *session.Manager, logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{
		cfg:      cfg,
		oidc:     client,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Local teardown happens regardless of whether a session existed; a
	// logout request always leaves the browser signed out.
	h.sessions.Clear(r.Context(), w, r)
	h.logger.Info("user logged out")

	target := h.cfg.OIDC.PostLogoutRedirect
	if h.cfg.OIDC.IDPLogout {
		// Sessions carry no tokens, so the end-session redirect goes out
		// without an id_token_hint; providers treat the hint as optional.
		if endSession, ok := h.oidc.EndSessionURL("", h.absoluteURL(target)); ok {
			http.Redirect(w, r, endSession, http.StatusFound)
			return
		}
		h.logger.Warn("idp_logout enabled but the provider has no end-session endpoint")
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// absoluteURL resolves a local path against the configured base URL; the
// provider needs an absolute post_logout_redirect_uri.
func (h *LogoutHandler) absoluteURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(h.cfg.Server.BaseURL, "/") + path
}
