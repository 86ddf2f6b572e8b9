// Package provider holds the static per-IdP preset tables: issuer URL
// conventions, endpoint defaults used when discovery is unavailable, and
// the authorization-request quirks each provider needs. Everything here is
// read-only after startup.
package provider

import (
	"net/url"
	"strings"
)

// Endpoints are the protocol URLs for one issuer, either taken from
// discovery or derived from the profile's conventions.
type Endpoints struct {
	AuthURL       string
	TokenURL      string
	JWKSURL       string
	UserInfoURL   string
	EndSessionURL string
}

// QuirkInput is what a quirk gets to look at when rewriting the outgoing
// authorization request.
type QuirkInput struct {
	Issuer string
	// Params are the operator-supplied preset inputs (tenant, domain,
	// team, audience, hd, ...).
	Params map[string]string
	// RefreshWanted is true when the deployment relies on refresh tokens,
	// so providers that gate them behind extra parameters get those
	// parameters forced on.
	RefreshWanted bool
}

// Profile is the static description of one identity provider preset.
type Profile struct {
	Name string

	// issuerFor fills in the provider's issuer convention from params.
	issuerFor func(params map[string]string) string

	// endpointsFor derives endpoint defaults from the issuer, used only
	// when discovery is disabled or failed.
	endpointsFor func(issuer string) Endpoints

	// quirk rewrites the authorization request query in place. May be nil.
	quirk func(q url.Values, in QuirkInput)
}

var profiles = map[string]Profile{
	"google": {
		Name:      "google",
		issuerFor: func(map[string]string) string { return "https://accounts.google.com" },
		endpointsFor: func(issuer string) Endpoints {
			return Endpoints{
				AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL:    "https://oauth2.googleapis.com/token",
				JWKSURL:     "https://www.googleapis.com/oauth2/v3/certs",
				UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			}
		},
		quirk: func(q url.Values, in QuirkInput) {
			// Google only returns a refresh token for offline requests
			// that re-prompt for consent.
			if in.RefreshWanted {
				q.Set("access_type", "offline")
				q.Set("prompt", "consent")
			}
			if hd := in.Params["hd"]; hd != "" {
				q.Set("hd", hd)
			}
		},
	},
	"azure": {
		Name: "azure",
		issuerFor: func(params map[string]string) string {
			tenant := params["tenant"]
			if tenant == "" {
				tenant = "common"
			}
			return "https://login.microsoftonline.com/" + tenant + "/v2.0"
		},
		endpointsFor: func(issuer string) Endpoints {
			base := strings.TrimSuffix(issuer, "/v2.0")
			return Endpoints{
				AuthURL:       base + "/oauth2/v2.0/authorize",
				TokenURL:      base + "/oauth2/v2.0/token",
				JWKSURL:       issuer + "/keys",
				EndSessionURL: base + "/oauth2/v2.0/logout",
			}
		},
		quirk: func(q url.Values, in QuirkInput) {
			// Azure hands out refresh tokens via the offline_access scope.
			if in.RefreshWanted {
				addScope(q, "offline_access")
			}
			if hint := in.Params["domain_hint"]; hint != "" {
				q.Set("domain_hint", hint)
			}
		},
	},
	"auth0": {
		Name: "auth0",
		issuerFor: func(params map[string]string) string {
			if d := params["domain"]; d != "" {
				return "https://" + strings.TrimSuffix(d, "/") + "/"
			}
			return ""
		},
		endpointsFor: func(issuer string) Endpoints {
			base := strings.TrimSuffix(issuer, "/")
			return Endpoints{
				AuthURL:       base + "/authorize",
				TokenURL:      base + "/oauth/token",
				JWKSURL:       base + "/.well-known/jwks.json",
				UserInfoURL:   base + "/userinfo",
				EndSessionURL: base + "/oidc/logout",
			}
		},
		quirk: func(q url.Values, in QuirkInput) {
			if in.RefreshWanted {
				addScope(q, "offline_access")
			}
			if aud := in.Params["audience"]; aud != "" {
				q.Set("audience", aud)
			}
		},
	},
	"github": {
		Name:      "github",
		issuerFor: func(map[string]string) string { return "https://github.com/login/oauth" },
		endpointsFor: func(issuer string) Endpoints {
			return Endpoints{
				AuthURL:     "https://github.com/login/oauth/authorize",
				TokenURL:    "https://github.com/login/oauth/access_token",
				UserInfoURL: "https://api.github.com/user",
			}
		},
		quirk: func(q url.Values, in QuirkInput) {
			// GitHub rejects OIDC scopes outright; translate them to its
			// own vocabulary.
			scopes := strings.Fields(q.Get("scope"))
			var kept []string
			for _, s := range scopes {
				switch s {
				case "openid", "profile", "offline_access":
					// unsupported
				case "email":
					kept = append(kept, "user:email")
				default:
					kept = append(kept, s)
				}
			}
			if len(kept) == 0 {
				kept = []string{"read:user", "user:email"}
			}
			q.Set("scope", strings.Join(kept, " "))
		},
	},
	"slack": {
		Name:      "slack",
		issuerFor: func(map[string]string) string { return "https://slack.com" },
		endpointsFor: func(issuer string) Endpoints {
			return Endpoints{
				AuthURL:     "https://slack.com/openid/connect/authorize",
				TokenURL:    "https://slack.com/api/openid.connect.token",
				JWKSURL:     "https://slack.com/openid/connect/keys",
				UserInfoURL: "https://slack.com/api/openid.connect.userInfo",
			}
		},
		quirk: func(q url.Values, in QuirkInput) {
			if team := in.Params["team"]; team != "" {
				q.Set("team", team)
			}
		},
	},
	"gitlab": {
		Name:      "gitlab",
		issuerFor: func(params map[string]string) string {
			if base := params["base_url"]; base != "" {
				return strings.TrimSuffix(base, "/")
			}
			return "https://gitlab.com"
		},
		endpointsFor: func(issuer string) Endpoints {
			base := strings.TrimSuffix(issuer, "/")
			return Endpoints{
				AuthURL:       base + "/oauth/authorize",
				TokenURL:      base + "/oauth/token",
				JWKSURL:       base + "/oauth/discovery/keys",
				UserInfoURL:   base + "/oauth/userinfo",
				EndSessionURL: base + "/oauth/revoke",
			}
		},
	},
}

// Lookup returns the preset for name, if any.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ResolveIssuer fills in the preset's issuer convention only when the
// operator has not supplied an explicit issuer.
func ResolveIssuer(name, explicit string, params map[string]string) string {
	if explicit != "" {
		return explicit
	}
	if p, ok := profiles[name]; ok && p.issuerFor != nil {
		return p.issuerFor(params)
	}
	return ""
}

// DefaultEndpoints derives endpoint defaults for the issuer: the preset's
// conventions when the preset is known, otherwise a generic layout under
// the issuer. Used when discovery is disabled or has failed.
func DefaultEndpoints(name, issuer string) Endpoints {
	if p, ok := profiles[name]; ok && p.endpointsFor != nil {
		return p.endpointsFor(issuer)
	}
	base := strings.TrimSuffix(issuer, "/")
	return Endpoints{
		AuthURL:     base + "/oauth2/authorize",
		TokenURL:    base + "/oauth2/token",
		JWKSURL:     base + "/.well-known/jwks.json",
		UserInfoURL: base + "/userinfo",
	}
}

// ApplyQuirks rewrites the authorization request query for the named
// preset. Unknown presets pass through untouched; there are no error
// conditions.
func ApplyQuirks(q url.Values, name string, in QuirkInput) {
	if p, ok := profiles[name]; ok && p.quirk != nil {
		p.quirk(q, in)
	}
}

func addScope(q url.Values, scope string) {
	scopes := strings.Fields(q.Get("scope"))
	for _, s := range scopes {
		if s == scope {
			return
		}
	}
	q.Set("scope", strings.Join(append(scopes, scope), " "))
}
