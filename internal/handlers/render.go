// Package handlers implements the authentication endpoints: login,
// callback, logout and health, plus the error rendering they share.
package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"

	"oidcgate/internal/middleware"
	"oidcgate/internal/oidc"
)

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign-in failed</title></head>
<body>
  <h1>Sign-in failed</h1>
  <p>{{.Description}}</p>
  <p><small>{{.Code}}</small></p>
  <p><a href="/auth/login">Try again</a></p>
</body>
</html>
`))

// writeAuthError answers a failed authentication step: an HTML page for
// browsers, a JSON body for everything else. The description is written
// for the end user; internals stay in the log.
func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code oidc.Code, description string) {
	if middleware.AcceptsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		errorPage.Execute(w, struct {
			Code        oidc.Code
			Description string
		}{code, description})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": description,
	})
}

// statusFor maps an error class to the HTTP status of the callback
// response: upstream transport trouble is a gateway problem, everything
// else is the caller's credentials.
func statusFor(code oidc.Code) int {
	switch code {
	case oidc.CodeNetworkError, oidc.CodeDiscoveryFailed:
		return http.StatusBadGateway
	case oidc.CodeStateMismatch, oidc.CodeStateExpired:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}
