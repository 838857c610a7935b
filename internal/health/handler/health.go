// Package handler serves readiness for the HTTP API and the standard gRPC health service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks database connectivity (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine answers (e.g. the OPA role authorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds one readiness probe.
const checkTimeout = 2 * time.Second

// Checker reports readiness from its dependencies. Nil dependencies are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
	logger *zap.Logger
}

// NewChecker returns a Checker.
func NewChecker(pinger Pinger, policy PolicyChecker, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{pinger: pinger, policy: policy, logger: logger}
}

// Check returns the failing component name and its error, or "", nil when ready.
func (c *Checker) Check(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return "database", err
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return "policy", err
		}
	}
	return "", nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Component string `json:"component,omitempty"`
}

// ServeHTTP answers 200 {"status":"ok"} when ready and 503 naming the failing component otherwise.
// The underlying error is logged, not returned.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	component, err := c.Check(r.Context())
	if err != nil {
		c.logger.Warn("health check failed", zap.String("component", component), zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "unavailable", Component: component})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}

// Watch keeps the gRPC health status of services (and the server-wide "" entry) in line with Check,
// probing every interval until ctx is cancelled.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration, services ...string) {
	c.update(ctx, srv, services)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.update(ctx, srv, services)
		}
	}
}

func (c *Checker) update(ctx context.Context, srv *health.Server, services []string) {
	status := healthpb.HealthCheckResponse_SERVING
	if component, err := c.Check(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("health check failed", zap.String("component", component), zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	srv.SetServingStatus("", status)
	for _, s := range services {
		srv.SetServingStatus(s, status)
	}
}
