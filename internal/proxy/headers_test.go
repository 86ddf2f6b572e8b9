package proxy

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"oidcgate/internal/session"
)

func sessionWithUser() *session.Session {
	return &session.Session{
		User: session.User{
			ID:     "user-1",
			Email:  "user@example.com",
			Name:   "Test User",
			Role:   "member",
			Scopes: []string{"read", "write"},
			Extras: map[string]any{"groups": []any{"eng", "ops"}},
		},
	}
}

func TestSetIdentityHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/app", nil)
	SetIdentityHeaders(req, sessionWithUser(), nil)

	assert.Equal(t, "user-1", req.Header.Get("X-Auth-User"))
	assert.Equal(t, "user@example.com", req.Header.Get("X-Auth-Email"))
	assert.Equal(t, "Test User", req.Header.Get("X-Auth-Name"))
	assert.Equal(t, "member", req.Header.Get("X-Auth-Role"))
	assert.Equal(t, "read,write", req.Header.Get("X-Auth-Scopes"))
}

// Inbound identity headers are attacker-controlled and must never reach
// the upstream.
func TestSetIdentityHeadersStripsSpoofedValues(t *testing.T) {
	req := httptest.NewRequest("GET", "/app", nil)
	req.Header.Set("X-Auth-User", "root")
	req.Header.Set("X-Auth-Role", "admin")

	sess := sessionWithUser()
	sess.User.Role = ""
	SetIdentityHeaders(req, sess, nil)

	assert.Equal(t, "user-1", req.Header.Get("X-Auth-User"))
	assert.Empty(t, req.Header.Get("X-Auth-Role"))
}

func TestClaimHeaderMappings(t *testing.T) {
	req := httptest.NewRequest("GET", "/app", nil)
	req.Header.Set("X-Groups", "spoofed")

	SetIdentityHeaders(req, sessionWithUser(), map[string]string{
		"groups": "X-Groups",
		"email":  "X-WebAuth-Email",
	})

	assert.Equal(t, "eng,ops", req.Header.Get("X-Groups"))
	assert.Equal(t, "user@example.com", req.Header.Get("X-WebAuth-Email"))
}

func TestClaimHeaderMappingSkipsAbsentFields(t *testing.T) {
	req := httptest.NewRequest("GET", "/app", nil)
	SetIdentityHeaders(req, sessionWithUser(), map[string]string{
		"department": "X-Department",
	})
	assert.Empty(t, req.Header.Get("X-Department"))
}
