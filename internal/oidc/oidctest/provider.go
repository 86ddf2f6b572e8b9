// Package oidctest runs an in-process identity provider for tests: real
// discovery, JWKS, code issuance and RS256-signed ID tokens, with knobs
// to misbehave in the ways the engine has to survive.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "test-key"

// Provider is a fake OIDC identity provider bound to an httptest server.
// The exported fields are misbehavior knobs; set them before driving a
// login through the provider.
type Provider struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu    sync.Mutex
	codes map[string]*authRequest

	// Identity minted into ID tokens.
	Subject string
	Email   string
	Name    string

	// IssuerOverride changes the iss claim in minted tokens without
	// moving the server, to provoke issuer-mismatch failures.
	IssuerOverride string
	// NonceOverride replaces the nonce echoed into the ID token.
	NonceOverride string
	// OmitExpiresIn drops expires_in from token responses.
	OmitExpiresIn bool
	// OmitRefreshToken drops the refresh token from token responses.
	OmitRefreshToken bool
	// TokenType overrides the token_type in responses.
	TokenType string
	// TokenError makes the token endpoint reply 400 with this OAuth error.
	TokenError string
	// ExtraClaims is merged into every minted ID token.
	ExtraClaims map[string]any

	// RefreshExpiresIn overrides expires_in on refresh grants only.
	RefreshExpiresIn int
	// ChallengeOverride replaces the stored PKCE code challenge, so the
	// client's verifier no longer matches at exchange time.
	ChallengeOverride string

	// RefreshGrants counts refresh_token grants served.
	RefreshGrants int
}

type authRequest struct {
	clientID      string
	redirectURI   string
	state         string
	nonce         string
	codeChallenge string
}

// New starts the provider; it is torn down with the test.
func New(t *testing.T) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate provider key: %v", err)
	}

	p := &Provider{
		t:         t,
		key:       key,
		codes:     make(map[string]*authRequest),
		Subject:   "subject-1",
		Email:     "user@example.com",
		Name:      "Test User",
		TokenType: "Bearer",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/auth", p.authorize)
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/keys", p.jwks)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// Issuer returns the provider's base URL, which doubles as its issuer.
func (p *Provider) Issuer() string { return p.srv.URL }

func (p *Provider) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                                p.srv.URL,
		"authorization_endpoint":                p.srv.URL + "/auth",
		"token_endpoint":                        p.srv.URL + "/token",
		"jwks_uri":                              p.srv.URL + "/keys",
		"userinfo_endpoint":                     p.srv.URL + "/userinfo",
		"end_session_endpoint":                  p.srv.URL + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
	})
}

func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := randomHex()

	challenge := q.Get("code_challenge")
	if p.ChallengeOverride != "" {
		challenge = p.ChallengeOverride
	}

	p.mu.Lock()
	p.codes[code] = &authRequest{
		clientID:      q.Get("client_id"),
		redirectURI:   q.Get("redirect_uri"),
		state:         q.Get("state"),
		nonce:         q.Get("nonce"),
		codeChallenge: challenge,
	}
	p.mu.Unlock()

	http.Redirect(w, r, fmt.Sprintf("%s?code=%s&state=%s", q.Get("redirect_uri"), code, q.Get("state")), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if p.TokenError != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": p.TokenError})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var nonce string
	var refreshing bool
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		p.mu.Lock()
		req, ok := p.codes[code]
		delete(p.codes, code)
		p.mu.Unlock()
		if !ok {
			oauthError(w, "invalid_grant")
			return
		}
		if req.codeChallenge != "" && !verifierMatches(r.PostForm.Get("code_verifier"), req.codeChallenge) {
			oauthError(w, "invalid_grant")
			return
		}
		nonce = req.nonce
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" {
			oauthError(w, "invalid_grant")
			return
		}
		refreshing = true
		p.mu.Lock()
		p.RefreshGrants++
		p.mu.Unlock()
	default:
		oauthError(w, "unsupported_grant_type")
		return
	}

	resp := map[string]any{
		"access_token": "at-" + randomHex(),
		"token_type":   p.TokenType,
		"id_token":     p.mintIDToken(requestClientID(r), nonce),
	}
	if !p.OmitExpiresIn {
		resp["expires_in"] = 3600
		if refreshing && p.RefreshExpiresIn > 0 {
			resp["expires_in"] = p.RefreshExpiresIn
		}
	}
	if !p.OmitRefreshToken {
		resp["refresh_token"] = "rt-" + randomHex()
	}
	writeJSON(w, resp)
}

func (p *Provider) mintIDToken(clientID, nonce string) string {
	iss := p.srv.URL
	if p.IssuerOverride != "" {
		iss = p.IssuerOverride
	}
	if p.NonceOverride != "" {
		nonce = p.NonceOverride
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   iss,
		"sub":   p.Subject,
		"aud":   clientID,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"email": p.Email,
		"name":  p.Name,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range p.ExtraClaims {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(p.key)
	if err != nil {
		p.t.Fatalf("failed to sign id token: %v", err)
	}
	return signed
}

func (p *Provider) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.Public().(*rsa.PublicKey)
	e := big32(pub.E)
	writeJSON(w, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		}},
	})
}

// requestClientID accepts the client id from the form body or from HTTP
// Basic auth, where oauth2 clients put it by default (form-urlencoded per
// RFC 6749 appendix B).
func requestClientID(r *http.Request) string {
	if id := r.PostForm.Get("client_id"); id != "" {
		return id
	}
	if id, _, ok := r.BasicAuth(); ok {
		if unescaped, err := url.QueryUnescape(id); err == nil {
			return unescaped
		}
		return id
	}
	return ""
}

func verifierMatches(verifier, challenge string) bool {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}

func oauthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func randomHex() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// big32 encodes the RSA public exponent big-endian without leading
// zeros.
func big32(e int) []byte {
	b := []byte{byte(e >> 16), byte(e >> 8), byte(e)}
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}
