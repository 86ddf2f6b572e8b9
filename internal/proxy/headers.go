package proxy

import (
	"fmt"
	"net/http"
	"strings"

	"oidcgate/internal/session"
)

// identityHeaders are the headers this service owns. They are stripped
// from every inbound request before forwarding, so a client can never
// smuggle its own identity past the upstream.
var identityHeaders = []string{
	"X-Auth-User",
	"X-Auth-Email",
	"X-Auth-Name",
	"X-Auth-Role",
	"X-Auth-Scopes",
}

// SetIdentityHeaders replaces any inbound identity headers with values
// derived from the authenticated session, then applies the operator's
// claim-to-header mappings on top.
func SetIdentityHeaders(req *http.Request, sess *session.Session, claimHeaders map[string]string) {
	for _, h := range identityHeaders {
		req.Header.Del(h)
	}
	for _, h := range claimHeaders {
		req.Header.Del(h)
	}

	u := sess.User
	req.Header.Set("X-Auth-User", u.ID)
	if u.Email != "" {
		req.Header.Set("X-Auth-Email", u.Email)
	}
	if u.Name != "" {
		req.Header.Set("X-Auth-Name", u.Name)
	}
	if u.Role != "" {
		req.Header.Set("X-Auth-Role", u.Role)
	}
	if len(u.Scopes) > 0 {
		req.Header.Set("X-Auth-Scopes", strings.Join(u.Scopes, ","))
	}

	for claim, header := range claimHeaders {
		if v := headerValue(userField(&u, claim)); v != "" {
			req.Header.Set(header, v)
		}
	}
}

// userField resolves a mapping source: the well-known user fields first,
// then the extras bag carried over from claims.
func userField(u *session.User, name string) any {
	switch name {
	case "id", "sub":
		return u.ID
	case "email":
		return u.Email
	case "name":
		return u.Name
	case "role":
		return u.Role
	case "scopes":
		return u.Scopes
	default:
		if u.Extras != nil {
			return u.Extras[name]
		}
		return nil
	}
}

func headerValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}
