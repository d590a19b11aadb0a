package auth

import "context"

type contextKey struct{}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFrom returns the verified identity stored by the bearer middleware.
func IdentityFrom(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(contextKey{}).(string)
	return identity, ok && identity != ""
}
