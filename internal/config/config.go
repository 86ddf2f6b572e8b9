package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. It is loaded exactly once at
// startup; defaults are resolved once in setDefaults and Validate rejects
// anything inconsistent before the server starts serving.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OIDC    OIDCConfig    `yaml:"oidc"`
	Session SessionConfig `yaml:"session"`
	Users   UsersConfig   `yaml:"users"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	BaseURL        string          `yaml:"base_url"`
	ProtectedPaths []string        `yaml:"protected_paths"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the /auth/* routes per client address.
type RateLimitConfig struct {
	Enabled *bool   `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
}

type OIDCConfig struct {
	// Provider selects a preset (google, azure, auth0, github, slack,
	// gitlab). Optional when an explicit issuer is configured.
	Provider string `yaml:"provider"`
	// Issuer overrides the preset's issuer convention when set.
	Issuer       string            `yaml:"issuer"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	RedirectURI  string            `yaml:"redirect_uri"`
	Scopes       []string          `yaml:"scopes"`
	Audiences    []string          `yaml:"audiences"`
	// Params carries preset-specific inputs such as the Azure tenant,
	// Auth0 domain or Slack team id.
	Params    map[string]string `yaml:"params"`
	Discovery ToggleConfig      `yaml:"discovery"`
	PKCE      ToggleConfig      `yaml:"pkce"`
	IDPLogout bool              `yaml:"idp_logout"`
	// PostLogoutRedirect is the local target after logout completes.
	PostLogoutRedirect string        `yaml:"post_logout_redirect"`
	ClockSkew          time.Duration `yaml:"clock_skew"`
	// MaxTokenAge rejects ID tokens issued further in the past, 0 disables
	// the check.
	MaxTokenAge time.Duration `yaml:"max_token_age"`
}

// ToggleConfig is a feature switch whose default depends on the feature.
type ToggleConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// On reports the switch state given the feature's default.
func (t ToggleConfig) On(def bool) bool {
	if t.Enabled == nil {
		return def
	}
	return *t.Enabled
}

type SessionConfig struct {
	// Mode is "stateless" (signed cookie) or "store" (opaque id backed by
	// the cache).
	Mode         string `yaml:"mode"`
	CookieSecret string `yaml:"cookie_secret"`
	CookieName   string `yaml:"cookie_name"`
	CookieDomain string `yaml:"cookie_domain"`
	// CookieMaxAge bounds the cookie itself; the absolute window bounds
	// the session it carries.
	CookieMaxAge     time.Duration `yaml:"cookie_max_age"`
	RollingDuration  time.Duration `yaml:"rolling_duration"`
	AbsoluteDuration time.Duration `yaml:"absolute_duration"`
	// StoreFallback decides what happens when mode is "store" and the
	// cache is unavailable at encode time: "fail" aborts the login,
	// "stateless" degrades to a signed cookie.
	StoreFallback     string        `yaml:"store_fallback"`
	AutoRefreshTokens *bool         `yaml:"auto_refresh_tokens"`
	RefreshThreshold  time.Duration `yaml:"refresh_threshold"`
	// FallbackTokenLifetime is used when the provider returns neither
	// expires_in nor a usable ID token exp claim.
	FallbackTokenLifetime time.Duration `yaml:"fallback_token_lifetime"`
}

// AutoRefresh reports whether implicit token refresh is enabled (default
// on).
func (s SessionConfig) AutoRefresh() bool {
	if s.AutoRefreshTokens == nil {
		return true
	}
	return *s.AutoRefreshTokens
}

type UsersConfig struct {
	AutoCreate *bool `yaml:"auto_create"`
	// IDClaim is the primary identity claim, fallbacks are tried in order
	// after it.
	IDClaim          string   `yaml:"id_claim"`
	FallbackIDClaims []string `yaml:"fallback_id_claims"`
	// LookupFields are claim names tried for field-based lookup when no
	// direct id matched; order is significant.
	LookupFields []string `yaml:"lookup_fields"`
	// Mapping maps claims to user record fields when creating users.
	Mapping map[string]string `yaml:"mapping"`
}

// AutoCreateUser reports whether unknown identities get a new user record
// (default on).
func (u UsersConfig) AutoCreateUser() bool {
	if u.AutoCreate == nil {
		return true
	}
	return *u.AutoCreate
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type StoreConfig struct {
	// Type is "sqlite", "memory", or "none" to run without a user store
	// (sessions are then built from claims alone).
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

type ProxyConfig struct {
	Upstream     string `yaml:"upstream"`
	PreserveHost bool   `yaml:"preserve_host"`
	// ClaimHeaders maps session user claims to upstream request headers.
	ClaimHeaders map[string]string `yaml:"claim_headers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, decodes and defaults the configuration file. Unknown fields
// are rejected so typos surface at startup instead of silently running
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes; see Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.loadSecretsFromEnv()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.ProtectedPaths) == 0 {
		c.Server.ProtectedPaths = []string{"/**"}
	}
	if c.Server.RateLimit.Rate == 0 {
		c.Server.RateLimit.Rate = 5
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 10
	}

	if len(c.OIDC.Scopes) == 0 {
		c.OIDC.Scopes = []string{"openid", "profile", "email"}
	}
	if c.OIDC.ClockSkew == 0 {
		c.OIDC.ClockSkew = time.Minute
	}
	if c.OIDC.PostLogoutRedirect == "" {
		c.OIDC.PostLogoutRedirect = "/"
	}

	if c.Session.Mode == "" {
		c.Session.Mode = "stateless"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "oidcgate_session"
	}
	if c.Session.CookieMaxAge == 0 {
		c.Session.CookieMaxAge = 24 * time.Hour
	}
	if c.Session.RollingDuration == 0 {
		c.Session.RollingDuration = 24 * time.Hour
	}
	if c.Session.AbsoluteDuration == 0 {
		c.Session.AbsoluteDuration = 7 * 24 * time.Hour
	}
	if c.Session.StoreFallback == "" {
		c.Session.StoreFallback = "fail"
	}
	if c.Session.RefreshThreshold == 0 {
		c.Session.RefreshThreshold = 5 * time.Minute
	}
	if c.Session.FallbackTokenLifetime == 0 {
		c.Session.FallbackTokenLifetime = time.Hour
	}

	if c.Users.IDClaim == "" {
		c.Users.IDClaim = "sub"
	}
	if len(c.Users.LookupFields) == 0 {
		c.Users.LookupFields = []string{"email", "preferred_username"}
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.Type == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "oidcgate.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) loadSecretsFromEnv() {
	if v := os.Getenv("OIDC_CLIENT_ID"); v != "" {
		c.OIDC.ClientID = v
	}
	if v := os.Getenv("OIDC_CLIENT_SECRET"); v != "" {
		c.OIDC.ClientSecret = v
	}
	if v := os.Getenv("SESSION_COOKIE_SECRET"); v != "" {
		c.Session.CookieSecret = v
	}
	if c.Cache.Redis != nil {
		if v := os.Getenv("REDIS_PASSWORD"); v != "" {
			c.Cache.Redis.Password = v
		}
	}
}
