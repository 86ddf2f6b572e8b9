package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"oidcgate/internal/config"
	"oidcgate/internal/provider"
)

// Client drives the relying-party side of the authorization code flow
// against one identity provider. It is built once at startup and read-only
// afterwards.
type Client struct {
	cfg        config.OIDCConfig
	issuer     string
	endpoints  provider.Endpoints
	discovered bool
	verifier   *gooidc.IDTokenVerifier
	httpClient *http.Client
	logger     *slog.Logger

	// refreshWanted switches on the provider quirks that force refresh
	// token issuance.
	refreshWanted bool
}

type discoveryClaims struct {
	JWKSURL            string `json:"jwks_uri"`
	UserInfoURL        string `json:"userinfo_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewClient resolves the issuer (preset convention unless configured
// explicitly), runs discovery when enabled, and prepares the ID token
// signature verifier. Discovery failure is not fatal: it degrades silently
// to the preset's endpoint conventions, per the availability policy.
func NewClient(ctx context.Context, cfg config.OIDCConfig, refreshWanted bool, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	issuer := provider.ResolveIssuer(cfg.Provider, cfg.Issuer, cfg.Params)
	if issuer == "" {
		return nil, fmt.Errorf("no issuer configured or derivable for provider %q: %w", cfg.Provider, ErrConfigInvalid)
	}

	c := &Client{
		cfg:           cfg,
		issuer:        issuer,
		httpClient:    httpClient,
		logger:        logger,
		refreshWanted: refreshWanted,
	}

	clientCtx := gooidc.ClientContext(ctx, httpClient)
	if cfg.Discovery.On(true) {
		p, err := gooidc.NewProvider(clientCtx, issuer)
		if err != nil {
			// Degrade to the preset's conventions; the provider may just
			// be briefly unreachable.
			logger.Warn("discovery failed, using endpoint defaults",
				"issuer", issuer,
				"error", err,
			)
		} else {
			var extra discoveryClaims
			if err := p.Claims(&extra); err == nil {
				c.endpoints = provider.Endpoints{
					AuthURL:       p.Endpoint().AuthURL,
					TokenURL:      p.Endpoint().TokenURL,
					JWKSURL:       extra.JWKSURL,
					UserInfoURL:   extra.UserInfoURL,
					EndSessionURL: extra.EndSessionEndpoint,
				}
				c.discovered = true
			}
		}
	}
	if !c.discovered {
		c.endpoints = provider.DefaultEndpoints(cfg.Provider, issuer)
	}

	if c.endpoints.JWKSURL != "" {
		keySet := gooidc.NewRemoteKeySet(clientCtx, c.endpoints.JWKSURL)
		// Signature verification only; claim validation is this package's
		// ValidateIDToken so every violation gets reported, not just the
		// first.
		c.verifier = gooidc.NewVerifier(issuer, keySet, &gooidc.Config{
			SkipClientIDCheck: true,
			SkipExpiryCheck:   true,
			SkipIssuerCheck:   true,
		})
	}

	return c, nil
}

// Issuer returns the resolved issuer URL.
func (c *Client) Issuer() string { return c.issuer }

// AuthCodeURL builds the authorization request URL for one login attempt,
// with the provider preset's quirks applied last.
func (c *Client) AuthCodeURL(state, nonce string, pkce *PKCE) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	if pkce != nil {
		q.Set("code_challenge", pkce.Challenge)
		q.Set("code_challenge_method", "S256")
	}

	provider.ApplyQuirks(q, c.cfg.Provider, provider.QuirkInput{
		Issuer:        c.issuer,
		Params:        c.cfg.Params,
		RefreshWanted: c.refreshWanted,
	})

	sep := "?"
	if strings.Contains(c.endpoints.AuthURL, "?") {
		sep = "&"
	}
	return c.endpoints.AuthURL + sep + q.Encode()
}

// OfflineRequested reports whether the outgoing authorization request asks
// for a refresh token, which makes refresh_token mandatory in the token
// response.
func (c *Client) OfflineRequested() bool {
	for _, s := range c.cfg.Scopes {
		if s == "offline_access" {
			return true
		}
	}
	q := url.Values{}
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	provider.ApplyQuirks(q, c.cfg.Provider, provider.QuirkInput{
		Issuer:        c.issuer,
		Params:        c.cfg.Params,
		RefreshWanted: c.refreshWanted,
	})
	return strings.Contains(" "+q.Get("scope")+" ", " offline_access ")
}

// Exchange redeems an authorization code (plus PKCE verifier when PKCE is
// in use) at the token endpoint. Failures here are fatal to the callback:
// a provider rejection maps to ErrProviderError, anything transport-level
// to ErrNetworkError.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}

	tok, err := c.oauth2Config().Exchange(c.clientContext(ctx), code, opts...)
	if err != nil {
		return nil, c.wrapTokenEndpointError("code exchange", err)
	}
	return FromOAuth2Token(tok), nil
}

// Refresh exchanges a refresh token for a fresh token response. Callers
// treat any error as "let the session expire naturally"; a failed refresh
// is never fatal to the request that triggered it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ts := c.oauth2Config().TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	})
	tok, err := ts.Token()
	if err != nil {
		return nil, c.wrapTokenEndpointError("refresh", err)
	}
	return FromOAuth2Token(tok), nil
}

// VerifyIDToken checks the token's signature against the provider's key
// set and returns the decoded claims. Claim-level validation is the
// caller's job via ValidateIDToken.
func (c *Client) VerifyIDToken(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("id_token is empty: %w", ErrTokenMissing)
	}
	if c.verifier == nil {
		return nil, fmt.Errorf("no key set available for issuer %s: %w", c.issuer, ErrConfigInvalid)
	}
	idToken, err := c.verifier.Verify(c.clientContext(ctx), raw)
	if err != nil {
		return nil, fmt.Errorf("id_token signature verification failed: %w", errors.Join(err, ErrTokenInvalid))
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id_token claims: %w", errors.Join(err, ErrTokenInvalid))
	}
	return claims, nil
}

// EndSessionURL builds the IdP logout redirect, when the provider exposes
// an end-session endpoint.
func (c *Client) EndSessionURL(idTokenHint, postLogoutRedirect string) (string, bool) {
	if c.endpoints.EndSessionURL == "" {
		return "", false
	}
	q := url.Values{}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	if enc := q.Encode(); enc != "" {
		return c.endpoints.EndSessionURL + "?" + enc, true
	}
	return c.endpoints.EndSessionURL, true
}

func (c *Client) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.endpoints.AuthURL,
			TokenURL: c.endpoints.TokenURL,
		},
	}
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return gooidc.ClientContext(ctx, c.httpClient)
}

func (c *Client) wrapTokenEndpointError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s rejected by provider: %w", op, errors.Join(err, ErrProviderError))
	}
	return fmt.Errorf("%s transport failure: %w", op, errors.Join(err, ErrNetworkError))
}
