package auth

import "context"

type tokenContextKey struct{}
type adminContextKey struct{}

// ContextWithToken attaches the validated token to the context.
func ContextWithToken(ctx context.Context, tok Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, &tok)
}

// TokenFromContext extracts the validated token from the context.
func TokenFromContext(ctx context.Context) (Token, bool) {
	if ctx == nil {
		return Token{}, false
	}
	v, ok := ctx.Value(tokenContextKey{}).(*Token)
	if !ok || v == nil {
		return Token{}, false
	}
	return *v, true
}

// ContextWithAdmin attaches the resolved administrative caller to the context.
func ContextWithAdmin(ctx context.Context, admin Admin) context.Context {
	return context.WithValue(ctx, adminContextKey{}, &admin)
}

// AdminFromContext extracts the administrative caller from the context.
func AdminFromContext(ctx context.Context) (Admin, bool) {
	if ctx == nil {
		return Admin{}, false
	}
	v, ok := ctx.Value(adminContextKey{}).(*Admin)
	if !ok || v == nil {
		return Admin{}, false
	}
	return *v, true
}
