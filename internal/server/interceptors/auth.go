package interceptors

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
	"github.com/mohamedFouadgebil/socialMedia/internal/obs"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	"github.com/mohamedFouadgebil/socialMedia/internal/telemetry"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// Verifier validates an Authorization header value.
type Verifier interface {
	Verify(ctx context.Context, header string, kind security.Kind) (*service.Result, error)
}

// Authorizer decides whether role may use a route that accepts allowed.
type Authorizer interface {
	Allow(ctx context.Context, role string, allowed []string) (bool, error)
}

// ErrorWriter writes the HTTP response for a failed request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator is HTTP middleware that verifies the Authorization header and checks the principal's role.
type Authenticator struct {
	verifier   Verifier
	authorizer Authorizer
	writeError ErrorWriter
	events     telemetry.EventEmitter
	logger     *zap.Logger
}

// NewAuthenticator returns an Authenticator. authorizer and events may be nil; without an authorizer
// role lists are not enforced.
func NewAuthenticator(verifier Verifier, authorizer Authorizer, writeError ErrorWriter, events telemetry.EventEmitter, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{verifier: verifier, authorizer: authorizer, writeError: writeError, events: events, logger: logger}
}

// Require returns middleware admitting requests that carry a valid token of kind whose principal
// holds one of roles. The verified credential is stored in the request context.
func (a *Authenticator) Require(kind security.Kind, roles ...userdomain.Role) func(http.Handler) http.Handler {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := a.verifier.Verify(r.Context(), r.Header.Get("Authorization"), kind)
			if err != nil {
				a.reject(r, err)
				a.writeError(w, r, err)
				return
			}
			if a.authorizer != nil && len(allowed) > 0 {
				ok, err := a.authorizer.Allow(r.Context(), string(res.Principal.Role), allowed)
				if err != nil {
					a.logger.Error("authorization policy failed", zap.Error(err))
					a.writeError(w, r, fmt.Errorf("authorize: %w", err))
					return
				}
				if !ok {
					a.reject(r, service.ErrForbidden)
					a.writeError(w, r, service.ErrForbidden)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), res)))
		})
	}
}

func (a *Authenticator) reject(r *http.Request, err error) {
	reason := service.Reason(err)
	obs.RecordAuthRejection(reason)
	a.logger.Debug("credential rejected",
		zap.String("reason", reason), zap.String("method", r.Method), zap.String("path", r.URL.Path))
	ev := telemetry.NewEvent(telemetry.EventVerifyRejected, "", "")
	ev.Reason = reason
	ev.Source = "http"
	telemetry.EmitAsync(a.events, ev)
}
