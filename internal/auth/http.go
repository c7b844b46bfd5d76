package auth

import (
	"net/http"
	"strings"

	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/httpx"
	"github.com/helpinghand/helpinghand/internal/logging"
)

const (
	msgNoToken      = "No token, authorization denied"
	msgInvalidToken = "Token is not valid"
)

// TokenFromRequest reads x-auth-token, falling back to a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("x-auth-token")); t != "" {
		return t
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return ""
}

// Middleware verifies the token on every request and stores the
// Principal in the request context.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				httpx.Error(w, http.StatusUnauthorized, msgNoToken)
				return
			}
			p, err := issuer.Verify(token)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			logging.SetSubject(r.Context(), p.ID)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects callers without one of roles with 403 and msg.
func RequireRole(msg string, roles ...db.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !HasAnyRole(p, roles...) {
				httpx.Error(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
