package access

import "context"

type scopeContextKey struct{}

// ContextWithScope attaches the resolved scope to the context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the resolved scope. The second return is false
// when no scope was resolved for this request; callers must treat that as
// no visibility, never as unrestricted.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
