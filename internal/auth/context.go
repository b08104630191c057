package auth

import (
	"context"
	"errors"
	"time"
)

// Session is the request-scoped holder of the resolved principal.
type Session struct {
	Principal Principal
	Token     string
	ExpiresAt time.Time
}

type sessionContextKey struct{}

var errSessionAlreadySet = errors.New("auth: session already attached to context")

// ContextWithSession attaches the session to ctx. A context carries at most
// one session; a second attach is rejected so downstream code can rely on
// the principal never changing mid-request.
func ContextWithSession(ctx context.Context, s Session) (context.Context, error) {
	if _, ok := SessionFromContext(ctx); ok {
		return ctx, errSessionAlreadySet
	}
	return context.WithValue(ctx, sessionContextKey{}, &s), nil
}

// ContextWithPrincipal attaches a session holding only the principal.
// Intended for tests and internal jobs acting on behalf of a user.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	next, err := ContextWithSession(ctx, Session{Principal: principal})
	if err != nil {
		return ctx
	}
	return next
}

// SessionFromContext returns a copy of the session attached to ctx.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	return s.Principal, true
}

// UserIDFromContext returns the authenticated user's id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}
