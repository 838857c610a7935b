package server

import (
	"net/http"

	"go.uber.org/zap"

	identityhandler "github.com/mohamedFouadgebil/socialMedia/internal/identity/handler"
	"github.com/mohamedFouadgebil/socialMedia/internal/obs"
)

// HTTPDeps holds the handlers mounted on the REST API.
type HTTPDeps struct {
	// API serves /api/v1/auth and /api/v1/user. If nil, those routes are not registered.
	API *identityhandler.Handler
	// Health serves GET /health. If nil, the route is not registered.
	Health http.Handler
	// RateLimiter limits requests per client. If nil, requests are not limited.
	RateLimiter *RateLimiter
	// TrustedProxies decides whose X-Forwarded-For is believed in access logs.
	TrustedProxies TrustedProxies
	Logger         *zap.Logger
}

// NewHTTPHandler builds the REST API: routes, then rate limiting, security headers,
// access logging and Prometheus instrumentation, outermost last.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	deps.API.Register(mux)
	if deps.Health != nil {
		mux.Handle("GET /health", deps.Health)
	}
	mux.Handle("GET /metrics", obs.Handler())

	var h http.Handler = mux
	if deps.RateLimiter != nil {
		h = deps.RateLimiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	h = AccessLog(logger, deps.TrustedProxies, h)
	return obs.Instrument(h)
}
