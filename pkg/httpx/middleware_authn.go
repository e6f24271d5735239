package httpx

import (
	"net/http"
	"strings"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WriteBearerError writes an RFC 6750 challenge with a JSON error body.
// code is the RFC 6750 error code, e.g. "invalid_token".
func WriteBearerError(w http.ResponseWriter, status int, code, desc string) {
	challenge := `Bearer`
	if code != "" {
		challenge += ` error="` + code + `"`
		if desc != "" {
			challenge += `, error_description="` + strings.ReplaceAll(desc, `"`, `'`) + `"`
		}
	}
	w.Header().Set("WWW-Authenticate", challenge)
	WriteError(w, status, code, desc)
}
