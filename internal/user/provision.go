// Package user resolves a validated claim set to a persisted user record:
// direct lookup, field-based lookup, then optional auto-creation, with
// enrichment hooks on either write path.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"oidcgate/internal/config"
	"oidcgate/internal/oidc"
	"oidcgate/internal/store"
)

// defaultMapping is the claim-to-field mapping used when the operator
// configures none.
var defaultMapping = map[string]string{
	"email":              "email",
	"name":               "name",
	"preferred_username": "username",
}

// Hooks let the host enrich a record from external sources before it is
// written. Hook failures are logged and swallowed: a hook must never block
// a user who otherwise authenticated fine.
type Hooks struct {
	BeforeCreate func(ctx context.Context, u *store.User, claims oidc.Claims) error
	BeforeUpdate func(ctx context.Context, u *store.User, claims oidc.Claims) error
}

// Provisioner owns the claims-to-user resolution policy.
type Provisioner struct {
	store  store.Store
	cfg    config.UsersConfig
	hooks  Hooks
	logger *slog.Logger
}

// New builds a Provisioner.
func New(s store.Store, cfg config.UsersConfig, hooks Hooks, logger *slog.Logger) *Provisioner {
	return &Provisioner{store: s, cfg: cfg, hooks: hooks, logger: logger}
}

// Result is the outcome of a successful resolution.
type Result struct {
	User    *store.User
	Created bool
}

// Resolve finds or creates the user for a claim set. Returns (nil, nil)
// when no user matched and auto-creation is disabled; the caller treats
// that as "not provisioned". Persistence failures are returned as errors
// and are fatal to the authentication attempt.
func (p *Provisioner) Resolve(ctx context.Context, claims oidc.Claims, issuer string) (*Result, error) {
	// Tier one: direct id lookup over the candidate list. The primary
	// claim leads, fallbacks follow in configured order; order decides
	// ties.
	candidates := p.candidateIDs(claims)
	for _, id := range candidates {
		u, err := p.store.Get(ctx, id)
		if err == nil {
			return p.update(ctx, u, claims, issuer)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user lookup by id failed: %w", err)
		}
	}

	// Tier two: field-based lookup, first non-empty claim wins.
	for _, claimName := range p.cfg.LookupFields {
		value := claims.String(claimName)
		if value == "" {
			continue
		}
		field := p.fieldFor(claimName)
		if field == "" {
			continue
		}
		matches, err := p.store.Query(ctx, store.Filter{field: value}, 1)
		if err != nil {
			return nil, fmt.Errorf("user lookup by %s failed: %w", field, err)
		}
		if len(matches) > 0 {
			return p.update(ctx, matches[0], claims, issuer)
		}
	}

	if !p.cfg.AutoCreateUser() {
		return nil, nil
	}
	return p.create(ctx, claims, candidates, issuer)
}

func (p *Provisioner) create(ctx context.Context, claims oidc.Claims, candidates []string, issuer string) (*Result, error) {
	u := &store.User{
		Identity:    identityMeta(claims, issuer),
		LastLoginAt: time.Now(),
	}
	if len(candidates) > 0 {
		u.ID = candidates[0]
	} else {
		u.ID = uuid.NewString()
	}
	for claimName, field := range p.mapping() {
		if v := claims.String(claimName); v != "" {
			store.SetField(u, field, v)
		}
	}
	if scopes := claims.StringSlice("scope"); len(scopes) > 0 {
		u.Scopes = scopes
	}

	if p.hooks.BeforeCreate != nil {
		if err := p.hooks.BeforeCreate(ctx, u, claims); err != nil {
			p.logger.Warn("before-create hook failed, continuing without enrichment",
				"user_id", u.ID,
				"error", err,
			)
		}
	}

	if err := p.store.Insert(ctx, u); err != nil {
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	return &Result{User: u, Created: true}, nil
}

func (p *Provisioner) update(ctx context.Context, u *store.User, claims oidc.Claims, issuer string) (*Result, error) {
	// Refresh the volatile fields, leave everything else as it was.
	updated := *u
	updated.LastLoginAt = time.Now()
	updated.Identity = identityMeta(claims, issuer)
	if name := claims.String("name"); name != "" {
		updated.Name = name
	}

	if p.hooks.BeforeUpdate != nil {
		if err := p.hooks.BeforeUpdate(ctx, &updated, claims); err != nil {
			p.logger.Warn("before-update hook failed, continuing without enrichment",
				"user_id", u.ID,
				"error", err,
			)
			updated = *u
			updated.LastLoginAt = time.Now()
			updated.Identity = identityMeta(claims, issuer)
		}
	}

	partial := store.Partial{
		"last_login_at": updated.LastLoginAt,
		"identity":      updated.Identity,
	}
	for _, field := range []string{"email", "username", "name", "role"} {
		if v := store.FieldValue(&updated, field); v != "" && v != store.FieldValue(u, field) {
			partial[field] = v
		}
	}
	if err := p.store.Update(ctx, u.ID, partial); err != nil {
		return nil, fmt.Errorf("user update failed: %w", err)
	}
	return &Result{User: &updated, Created: false}, nil
}

// candidateIDs builds the ordered, de-duplicated direct-lookup list from
// the primary id claim and the configured fallbacks.
func (p *Provisioner) candidateIDs(claims oidc.Claims) []string {
	claimNames := append([]string{p.cfg.IDClaim}, p.cfg.FallbackIDClaims...)
	seen := make(map[string]bool, len(claimNames))
	var out []string
	for _, name := range claimNames {
		v := claims.String(name)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (p *Provisioner) mapping() map[string]string {
	if len(p.cfg.Mapping) > 0 {
		return p.cfg.Mapping
	}
	return defaultMapping
}

func (p *Provisioner) fieldFor(claimName string) string {
	if f, ok := p.mapping()[claimName]; ok {
		return f
	}
	switch claimName {
	case "email", "username", "name", "role":
		return claimName
	}
	return ""
}

func identityMeta(claims oidc.Claims, issuer string) store.IdentityMeta {
	return store.IdentityMeta{
		Issuer:  issuer,
		Subject: claims.String("sub"),
		Claims:  claims,
	}
}
