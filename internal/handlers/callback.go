package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"oidcgate/internal/config"
	"oidcgate/internal/events"
	"oidcgate/internal/oidc"
	"oidcgate/internal/session"
	"oidcgate/internal/user"
	"oidcgate/pkg/security"
)

// CallbackHandler completes the authorization code flow: it burns the
// login state, exchanges the code, validates the token response and the
// ID token, provisions the user, and establishes the session.
type CallbackHandler struct {
	cfg         *config.Config
	oidc        *oidc.Client
	states      *session.StateStore
	sessions    *session.Manager
	provisioner *user.Provisioner
	events      events.Emitter
	logger      *slog.Logger
}

// NewCallbackHandler builds the handler. provisioner may be nil when no
// user store is configured; sessions are then virtual, built from claims
// alone.
func NewCallbackHandler(cfg *config.Config, client *oidc.Client, states *session.StateStore, sessions *session.Manager, provisioner *user.Provisioner, emitter events.Emitter, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		cfg:         cfg,
		oidc:        client,
		states:      states,
		sessions:    sessions,
		provisioner: provisioner,
		events:      emitter,
		logger:      logger,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The state cookie is single-use whatever happens next.
	stateCookie := stateCookieName(h.cfg.Session.CookieName)
	handle := security.GetChunked(r, stateCookie)
	security.DeleteChunked(w, r, stateCookie, stateCookieOptions(r))

	ls, err := h.states.Take(ctx, handle)
	if err != nil {
		if !errors.Is(err, session.ErrStateNotFound) {
			h.logger.Error("login state lookup failed", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.logger.Warn("callback with unknown or replayed login state")
		writeAuthError(w, r, http.StatusBadRequest, oidc.CodeStateMismatch,
			"This sign-in attempt is unknown or was already used. Please sign in again.")
		return
	}
	if ls.Expired(time.Now()) {
		writeAuthError(w, r, http.StatusBadRequest, oidc.CodeStateExpired,
			"This sign-in attempt expired. Please sign in again.")
		return
	}

	q := r.URL.Query()
	if provErr := q.Get("error"); provErr != "" {
		h.logger.Warn("provider returned an error",
			"error", provErr,
			"description", q.Get("error_description"),
		)
		writeAuthError(w, r, http.StatusUnauthorized, oidc.CodeProviderError,
			"The identity provider rejected the sign-in: "+provErr)
		return
	}
	if q.Get("state") != ls.State {
		h.logger.Warn("state parameter does not match the stored login state")
		writeAuthError(w, r, http.StatusBadRequest, oidc.CodeStateMismatch,
			"The sign-in response did not match this browser's sign-in attempt.")
		return
	}
	code := q.Get("code")
	if code == "" {
		writeAuthError(w, r, http.StatusBadRequest, oidc.CodeProviderError,
			"The identity provider did not return an authorization code.")
		return
	}

	tr, err := h.oidc.Exchange(ctx, code, ls.CodeVerifier)
	if err != nil {
		h.failAuth(w, r, "code exchange failed", err)
		return
	}
	if err := oidc.ValidateTokenResponse(tr, h.oidc.OfflineRequested()); err != nil {
		h.failAuth(w, r, "token response rejected", err)
		return
	}

	claims, err := h.oidc.VerifyIDToken(ctx, tr.IDToken)
	if err != nil {
		h.failAuth(w, r, "id token signature rejected", err)
		return
	}
	if err := oidc.ValidateIDToken(claims, oidc.Expect{
		Issuer:      h.oidc.Issuer(),
		ClientID:    h.cfg.OIDC.ClientID,
		Audiences:   h.cfg.OIDC.Audiences,
		Nonce:       ls.Nonce,
		ClockSkew:   h.cfg.OIDC.ClockSkew,
		MaxTokenAge: h.cfg.OIDC.MaxTokenAge,
	}); err != nil {
		h.failAuth(w, r, "id token claims rejected", err)
		return
	}

	sessUser, virtual, created, err := h.resolveUser(r, claims)
	if err != nil {
		h.logger.Error("user provisioning failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if sessUser == nil {
		h.logger.Warn("authenticated identity has no user record and auto-create is off",
			"subject", claims.String("sub"),
		)
		writeAuthError(w, r, http.StatusForbidden, oidc.CodeTokenInvalid,
			"Your identity was verified but no account exists for it here.")
		return
	}

	if created {
		h.events.EmitUserEvent(ctx, events.KindUserCreated,
			events.NewPayload(sessUser.ID, sessUser.Email, h.oidc.Issuer(), virtual))
	}
	h.events.EmitUserEvent(ctx, events.KindUserLogin,
		events.NewPayload(sessUser.ID, sessUser.Email, h.oidc.Issuer(), virtual))

	now := time.Now()
	lifetime, source := oidc.ResolveExpiry(tr, claims, h.cfg.Session.FallbackTokenLifetime)
	sess := &session.Session{
		IssuedAt:     now,
		ExpiresAt:    now.Add(lifetime),
		LastActivity: now,
		RefreshToken: tr.RefreshToken,
		User:         *sessUser,
		IsVirtual:    virtual,
	}

	if err := h.sessions.Rotate(ctx, w, r, sess); err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			h.logger.Error("session store unavailable at login", "error", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to establish session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("authentication successful",
		"user_id", sess.User.ID,
		"virtual", virtual,
		"created", created,
		"expiry_source", string(source),
	)
	http.Redirect(w, r, sanitizeReturnTo(ls.ReturnTo), http.StatusFound)
}

// resolveUser turns validated claims into the session's user projection,
// through the provisioner when a store is configured and directly from
// claims otherwise. A nil user with nil error means "not provisioned".
func (h *CallbackHandler) resolveUser(r *http.Request, claims oidc.Claims) (*session.User, bool, bool, error) {
	if h.provisioner == nil {
		return &session.User{
			ID:    claims.String(h.cfg.Users.IDClaim),
			Email: claims.String("email"),
			Name:  claims.String("name"),
		}, true, false, nil
	}

	result, err := h.provisioner.Resolve(r.Context(), claims, h.oidc.Issuer())
	if err != nil {
		return nil, false, false, err
	}
	if result == nil {
		return nil, false, false, nil
	}
	return &session.User{
		ID:     result.User.ID,
		Email:  result.User.Email,
		Name:   result.User.Name,
		Role:   result.User.Role,
		Scopes: result.User.Scopes,
	}, false, result.Created, nil
}

func (h *CallbackHandler) failAuth(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := oidc.Classify(err)
	h.logger.Warn(msg, "code", string(code), "error", err)
	writeAuthError(w, r, statusFor(code), code,
		"Sign-in could not be completed. Please try again.")
}
