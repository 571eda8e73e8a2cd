package utils

import "context"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   int64
	Username string
	Role     string
}

type principalKey struct{}

// ContextWithPrincipal stores the caller on ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID > 0
}

// ActorID returns the caller's user id, or nil for anonymous contexts.
func ActorID(ctx context.Context) *int64 {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}
