// Package auth issues and verifies bearer tokens, guards HTTP routes and
// owns account registration and login.
package auth

import (
	"context"

	"github.com/helpinghand/helpinghand/internal/db"
)

// Principal is the authenticated caller. It carries everything the
// services need to re-check role and ownership.
type Principal struct {
	ID   string  `json:"id"`
	Role db.Role `json:"role"`
	Name string  `json:"name"`
}

func (p Principal) Is(role db.Role) bool { return p.Role == role }

type contextKey string

const principalContextKey contextKey = "helpinghand.principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// HasAnyRole reports whether p holds one of required. No roles means any.
func HasAnyRole(p Principal, required ...db.Role) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if p.Role == r {
			return true
		}
	}
	return false
}
