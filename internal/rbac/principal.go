package rbac

import (
	"context"
	"time"
)

// Principal is the authenticated actor derived from a verified access token.
type Principal struct {
	IdentityID  string
	Role        string
	ZoneID      string
	Permissions []string
	SessionID   string
	DeviceID    string
	TokenID     string
	ExpiresAt   time.Time
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
