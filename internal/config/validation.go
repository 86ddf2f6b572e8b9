package config

import (
	"fmt"
	"net/url"
	"strings"
)

// knownProviders mirrors the preset table in internal/provider. Validated
// here so a typo fails at startup rather than resolving to a pass-through
// profile at request time.
var knownProviders = map[string]bool{
	"google": true,
	"azure":  true,
	"auth0":  true,
	"github": true,
	"slack":  true,
	"gitlab": true,
}

// Validate checks the whole configuration, failing fast on anything the
// request path would otherwise trip over later.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.validateOIDC(); err != nil {
		return fmt.Errorf("oidc config: %w", err)
	}
	if err := c.validateSession(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.validateStore(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.validateProxy(); err != nil {
		return fmt.Errorf("proxy config: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %s", c.Server.BaseURL)
	}
	if c.Server.RateLimit.Rate < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be positive")
	}
	return nil
}

func (c *Config) validateOIDC() error {
	if c.OIDC.Provider == "" && c.OIDC.Issuer == "" {
		return fmt.Errorf("either provider or issuer is required")
	}
	if c.OIDC.Provider != "" && !knownProviders[c.OIDC.Provider] {
		return fmt.Errorf("unknown provider preset: %s", c.OIDC.Provider)
	}
	if c.OIDC.Issuer != "" {
		u, err := url.Parse(c.OIDC.Issuer)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("invalid issuer URL: %s", c.OIDC.Issuer)
		}
	}
	if c.OIDC.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.OIDC.ClientSecret == "" && !c.OIDC.PKCE.On(true) {
		return fmt.Errorf("client_secret is required when pkce is disabled")
	}
	if c.OIDC.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	if _, err := url.Parse(c.OIDC.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect_uri: %w", err)
	}
	hasOpenID := false
	for _, s := range c.OIDC.Scopes {
		if s == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("the 'openid' scope is required")
	}
	if c.OIDC.ClockSkew < 0 || c.OIDC.MaxTokenAge < 0 {
		return fmt.Errorf("clock_skew and max_token_age must not be negative")
	}
	return nil
}

func (c *Config) validateSession() error {
	if len(c.Session.CookieSecret) < 32 {
		return fmt.Errorf("cookie_secret must be at least 32 characters")
	}
	switch c.Session.Mode {
	case "stateless", "store":
	default:
		return fmt.Errorf("invalid mode: %s (must be stateless or store)", c.Session.Mode)
	}
	switch c.Session.StoreFallback {
	case "fail", "stateless":
	default:
		return fmt.Errorf("invalid store_fallback: %s (must be fail or stateless)", c.Session.StoreFallback)
	}
	if c.Session.RollingDuration > c.Session.AbsoluteDuration {
		return fmt.Errorf("rolling_duration exceeds absolute_duration")
	}
	if c.Session.AutoRefresh() && c.Session.RefreshThreshold <= 0 {
		return fmt.Errorf("refresh_threshold must be positive when auto_refresh_tokens is enabled")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}
	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Type {
	case "sqlite", "memory", "none":
	default:
		return fmt.Errorf("invalid type: %s (must be sqlite, memory, or none)", c.Store.Type)
	}
	if c.Store.Type == "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("dsn is required for the sqlite store")
	}
	return nil
}

func (c *Config) validateProxy() error {
	if c.Proxy.Upstream == "" {
		return nil
	}
	u, err := url.Parse(c.Proxy.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream URL: %s", c.Proxy.Upstream)
	}
	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}
