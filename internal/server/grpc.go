package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mohamedFouadgebil/socialMedia/internal/server/interceptors"
	sessionhandler "github.com/mohamedFouadgebil/socialMedia/internal/session/handler"
)

// healthCheckMethod is not logged by the logging interceptor.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Verifier backs SessionService.Introspect. If nil, Introspect returns Unimplemented.
	Verifier sessionhandler.Verifier
	// Health is the standard gRPC health service. If nil, it is not registered.
	Health *health.Server
	Logger *zap.Logger
}

// ServiceNames lists the services whose health status is published.
var ServiceNames = []string{sessionhandler.ServiceName}

// NewGRPCServer returns a gRPC server with OpenTelemetry instrumentation and request logging.
func NewGRPCServer(logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(logger, map[string]bool{healthCheckMethod: true})),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// RegisterServices registers all gRPC services with s.
//
// Service → handler mapping:
//   - socialmedia.session.v1.SessionService → internal/session/handler
//   - grpc.health.v1.Health                 → google.golang.org/grpc/health, driven by internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	sessionhandler.RegisterSessionServiceServer(s, sessionhandler.NewServer(deps.Verifier, deps.Logger))
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
