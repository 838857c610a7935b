package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohamedFouadgebil/socialMedia/internal/security"
)

// Sentinel errors; handlers map them to HTTP statuses and gRPC codes with errors.Is.
var (
	ErrInvalidInput          = security.ErrInvalidInput
	ErrConfiguration         = security.ErrConfiguration
	ErrUnknownSignatureLevel = security.ErrUnknownSignatureLevel
	ErrInvalidOrExpiredToken = security.ErrInvalidToken

	ErrMalformedHeader     = errors.New("malformed authorization header")
	ErrMalformedClaims     = errors.New("token claims are incomplete")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrPrincipalNotFound   = errors.New("principal not found")
	ErrGloballyInvalidated = errors.New("token issued before last credential change")
	// ErrStoreUnavailable is retryable: a store call timed out or failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidOTP       = errors.New("invalid confirmation code")

	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountNotConfirmed    = errors.New("account not confirmed")
	ErrForbidden              = errors.New("forbidden")
)

// IsAuthFailure reports whether err is one of the verifier rejections that must surface as 401.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrMalformedHeader, ErrUnknownSignatureLevel, ErrInvalidOrExpiredToken, ErrMalformedClaims,
		ErrSessionRevoked, ErrPrincipalNotFound, ErrGloballyInvalidated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Reason returns a short stable label for err, used as a metrics label and in logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, ErrUnknownSignatureLevel):
		return "unknown_signature_level"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "invalid_or_expired_token"
	case errors.Is(err, ErrMalformedClaims):
		return "malformed_claims"
	case errors.Is(err, ErrSessionRevoked):
		return "session_revoked"
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, ErrGloballyInvalidated):
		return "globally_invalidated"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "other"
}

func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out", ErrStoreUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
