package authz

import (
	"context"

	"orgmap.org/internal/directory"
)

// Principal is an acting user or API key with its role assignments already
// resolved by the session layer.
type Principal struct {
	ID          string
	Assignments []directory.RoleAssignment
}

// rolesOn returns the strongest role directly held on each org node.
func (p Principal) rolesOn() map[string]directory.Role {
	out := make(map[string]directory.Role, len(p.Assignments))
	for _, a := range p.Assignments {
		if cur, ok := out[a.OrgID]; ok && cur == directory.RoleAdmin {
			continue
		}
		out[a.OrgID] = a.Role
	}
	return out
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the resolved principal to the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &p)
}

// PrincipalFromContext extracts the principal placed by the session layer.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
