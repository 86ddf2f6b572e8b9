package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"oidcgate/internal/config"
	"oidcgate/internal/oidc"
	"oidcgate/internal/session"
	"oidcgate/pkg/security"
)

const stateTokenBytes = 32

// LoginHandler starts the authorization code flow: it mints the state,
// nonce and PKCE material, parks them server-side, hands the browser an
// opaque handle, and redirects to the provider.
type LoginHandler struct {
	cfg      *config.Config
	oidc     *oidc.Client
	states   *session.StateStore
	sessions *session.Manager
	logger   *slog.Logger
}

func NewLoginHandler(cfg *config.Config, client *oidc.Client, states *session.StateStore, sessions *session.Manager, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:      cfg,
		oidc:     client,
		states:   states,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	returnTo := sanitizeReturnTo(r.URL.Query().Get("return_to"))

	// A live session skips the provider round trip entirely.
	if s := h.sessions.Load(r); s != nil &&
		s.Fresh(h.cfg.Session.RollingDuration, h.cfg.Session.AbsoluteDuration, time.Now()) {
		http.Redirect(w, r, returnTo, http.StatusFound)
		return
	}

	state, err := security.RandomToken(stateTokenBytes)
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	nonce, err := security.RandomToken(stateTokenBytes)
	if err != nil {
		h.logger.Error("failed to generate nonce", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var pkce *oidc.PKCE
	if h.cfg.OIDC.PKCE.On(true) {
		pkce, err = oidc.NewPKCE()
		if err != nil {
			h.logger.Error("failed to generate pkce material", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	ls := &session.LoginState{
		State:    state,
		Nonce:    nonce,
		ReturnTo: returnTo,
		Expires:  time.Now().Add(session.StateTTL),
	}
	if pkce != nil {
		ls.CodeVerifier = pkce.Verifier
	}

	handle, err := h.states.Put(r.Context(), ls)
	if err != nil {
		h.logger.Error("failed to store login state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, security.NewCookie(stateCookieName(h.cfg.Session.CookieName), handle, stateCookieOptions(r)))

	authURL := h.oidc.AuthCodeURL(state, nonce, pkce)
	h.logger.Debug("redirecting to provider", "return_to", returnTo)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func stateCookieName(sessionCookie string) string {
	return sessionCookie + "_state"
}

// stateCookieOptions must survive the cross-site redirect back from the
// provider, so SameSite is None where Secure is possible and Lax
// otherwise (None without Secure is dropped by browsers).
func stateCookieOptions(r *http.Request) security.CookieOptions {
	opts := security.CookieOptions{
		Path:     "/",
		MaxAge:   int(session.StateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if session.RequestIsSecure(r) {
		opts.Secure = true
		opts.SameSite = http.SameSiteNoneMode
	}
	return opts
}

// sanitizeReturnTo only accepts same-origin relative paths; anything else
// falls back to the root to keep the parameter from becoming an open
// redirect.
func sanitizeReturnTo(raw string) string {
	if raw == "" ||
		!strings.HasPrefix(raw, "/") ||
		strings.HasPrefix(raw, "//") ||
		strings.ContainsAny(raw, "\\\r\n") {
		return "/"
	}
	return raw
}
