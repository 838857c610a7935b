package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	"github.com/mohamedFouadgebil/socialMedia/internal/server/interceptors"
	"github.com/mohamedFouadgebil/socialMedia/internal/telemetry"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
)

// Accounts registers principals and logs them in.
type Accounts interface {
	Signup(ctx context.Context, in service.SignupInput) (*userdomain.User, error)
	Login(ctx context.Context, email, password string) (*security.TokenPair, *userdomain.User, error)
}

// Confirmations redeems and re-issues account confirmation codes.
type Confirmations interface {
	Confirm(ctx context.Context, email, code string) error
	Resend(ctx context.Context, email string) error
}

// Invalidator ends sessions on logout.
type Invalidator interface {
	Invalidate(ctx context.Context, mode service.LogoutMode, claims *security.Claims) error
}

// Handler serves the auth and user REST routes.
type Handler struct {
	accounts      Accounts
	confirmations Confirmations
	invalidator   Invalidator
	auth          *interceptors.Authenticator
	events        telemetry.EventEmitter
	logger        *zap.Logger
	maxBodyBytes  int64
}

// NewHandler returns a Handler. auth guards the /user routes; events may be nil.
func NewHandler(accounts Accounts, confirmations Confirmations, invalidator Invalidator, auth *interceptors.Authenticator, events telemetry.EventEmitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accounts:      accounts,
		confirmations: confirmations,
		invalidator:   invalidator,
		auth:          auth,
		events:        events,
		logger:        logger,
		maxBodyBytes:  DefaultMaxBodyBytes,
	}
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/v1/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("PATCH /api/v1/auth/confirm-email", h.handleConfirmEmail)
	mux.HandleFunc("POST /api/v1/auth/resend-confirm-email", h.handleResendConfirmEmail)

	access := h.auth.Require(security.KindAccess, userdomain.RoleRegular)
	mux.Handle("GET /api/v1/user/profile", access(http.HandlerFunc(h.handleProfile)))
	mux.Handle("POST /api/v1/user/logout", access(http.HandlerFunc(h.handleLogout)))
}

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type confirmEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type logoutRequest struct {
	Flag string `json:"flag"`
}

type userView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Slug        string     `json:"slug"`
	Role        string     `json:"role"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type claimsView struct {
	Subject   string    `json:"sub"`
	SessionID string    `json:"sid"`
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type credentialsView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginView struct {
	Credentials credentialsView `json:"credentials"`
	TokenType   string          `json:"token_type"`
}

func newUserView(u *userdomain.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username(),
		Email:       u.Email,
		Slug:        u.Slug,
		Role:        string(u.Role),
		ConfirmedAt: u.ConfirmedAt,
		CreatedAt:   u.CreatedAt,
	}
}

func newClaimsView(c *security.Claims) claimsView {
	v := claimsView{Subject: c.Subject, SessionID: c.SessionID, Issuer: c.Issuer, IssuedAt: c.IssuedAtTime()}
	if c.ExpiresAt != nil {
		v.ExpiresAt = c.ExpiresAt.Time
	}
	return v
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	u, err := h.accounts.Signup(r.Context(), service.SignupInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeDone(w, http.StatusCreated, map[string]any{"user": newUserView(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	pair, _, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeDone(w, http.StatusOK, loginView{
		Credentials: credentialsView{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		TokenType:   string(pair.Level),
	})
}

func (h *Handler) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.confirmations.Confirm(r.Context(), req.Email, req.OTP); err != nil {
		h.logger.Debug("confirm email rejected", zap.String("reason", service.Reason(err)), zap.Error(err))
		writeConfirmError(w, r, err)
		return
	}
	ev := telemetry.NewEvent(telemetry.EventConfirmEmail, "", "")
	ev.Source = "http"
	telemetry.EmitAsync(h.events, ev)
	writeDone(w, http.StatusOK, nil)
}

// handleResendConfirmEmail answers 200 whether or not an unconfirmed account exists for the email.
func (h *Handler) handleResendConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	err := h.confirmations.Resend(r.Context(), req.Email)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrStoreUnavailable):
		WriteError(w, r, err)
		return
	default:
		h.logger.Debug("resend confirmation skipped", zap.Error(err))
	}
	writeDone(w, http.StatusOK, nil)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	res, ok := interceptors.AuthFromContext(r.Context())
	if !ok {
		WriteError(w, r, service.ErrMalformedClaims)
		return
	}
	writeDone(w, http.StatusOK, map[string]any{
		"user":    newUserView(res.Principal),
		"decoded": newClaimsView(res.Claims),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, ok := interceptors.AuthFromContext(r.Context())
	if !ok {
		WriteError(w, r, service.ErrMalformedClaims)
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	mode, err := service.ParseLogoutMode(req.Flag)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.invalidator.Invalidate(r.Context(), mode, res.Claims); err != nil {
		WriteError(w, r, err)
		return
	}

	status, eventType := http.StatusOK, telemetry.EventLogoutAll
	if mode == service.LogoutOnly {
		status, eventType = http.StatusCreated, telemetry.EventLogoutOnly
	}
	ev := telemetry.NewEvent(eventType, res.Principal.ID, res.Claims.SessionID)
	ev.Source = "http"
	telemetry.EmitAsync(h.events, ev)
	writeDone(w, status, nil)
}
