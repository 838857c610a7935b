package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
)

// RetryAfterSeconds is sent with every 503 caused by an unavailable store.
const RetryAfterSeconds = "5"

const (
	msgUnauthorized       = "unauthorized"
	msgForbidden          = "forbidden"
	msgUnavailable        = "service unavailable"
	msgInvalidCode        = "invalid email or code"
	msgInvalidCredentials = "invalid email or password"
	msgEmailTaken         = "email already registered"
	msgInternal           = "internal server error"
)

// WriteError maps a service error to an HTTP status and a fixed message. The specific verifier
// failure is never returned to the client; it is recorded by the auth middleware instead.
// It satisfies interceptors.ErrorWriter.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case service.IsAuthFailure(err):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: msgUnauthorized})
	case errors.Is(err, service.ErrStoreUnavailable):
		zap.L().Warn("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Retry-After", RetryAfterSeconds)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: msgUnavailable})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: msgForbidden})
	case errors.Is(err, service.ErrInvalidOTP):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidCode})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		writeJSON(w, http.StatusConflict, errorResponse{Error: msgEmailTaken})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountNotConfirmed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidCredentials})
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternal})
	}
}

// writeConfirmError answers every confirm failure except an unavailable store with the same 400,
// so the response does not reveal whether the email is registered.
func writeConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrStoreUnavailable) {
		WriteError(w, r, err)
		return
	}
	if errors.Is(err, service.ErrPrincipalNotFound) || errors.Is(err, service.ErrInvalidOTP) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidCode})
		return
	}
	WriteError(w, r, err)
}
