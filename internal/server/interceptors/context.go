package interceptors

import (
	"context"

	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
)

type contextKey struct{ name string }

var authKey = contextKey{"auth"}

// WithAuth returns a context carrying the verified credential.
// Handlers read it via AuthFromContext, GetUserID and GetSessionID.
func WithAuth(ctx context.Context, res *service.Result) context.Context {
	return context.WithValue(ctx, authKey, res)
}

// AuthFromContext returns the verified credential and true if the request passed authentication.
func AuthFromContext(ctx context.Context) (*service.Result, bool) {
	res, ok := ctx.Value(authKey).(*service.Result)
	return res, ok && res != nil
}

// GetUserID returns the authenticated principal id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	res, ok := AuthFromContext(ctx)
	if !ok || res.Principal == nil {
		return "", false
	}
	return res.Principal.ID, true
}

// GetSessionID returns the session id of the presented token and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	res, ok := AuthFromContext(ctx)
	if !ok || res.Claims == nil {
		return "", false
	}
	return res.Claims.SessionID, true
}
