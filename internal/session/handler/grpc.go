// Package handler serves SessionService, which lets other services of the platform check a bearer
// credential against the same rules as the REST API.
//
// The service uses well-known protobuf types so callers need no generated stubs:
// Introspect takes a google.protobuf.StringValue holding the Authorization header value and returns a
// google.protobuf.Struct describing the verified credential. The token kind is read from the
// "token-kind" request metadata and defaults to ACCESS.
package handler

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
	"github.com/mohamedFouadgebil/socialMedia/internal/obs"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "socialmedia.session.v1.SessionService"
	// IntrospectMethod is the full method name of Introspect.
	IntrospectMethod = "/" + ServiceName + "/Introspect"
	// TokenKindMetadataKey selects ACCESS or REFRESH verification.
	TokenKindMetadataKey = "token-kind"
)

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// SessionServiceDesc describes SessionService for grpc.ServiceRegistrar.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "session/v1/session.proto",
}

// RegisterSessionServiceServer registers srv with s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntrospectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Introspect calls SessionService.Introspect on cc. kind is sent as token-kind metadata.
func Introspect(ctx context.Context, cc grpc.ClientConnInterface, header string, kind security.Kind, opts ...grpc.CallOption) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, TokenKindMetadataKey, string(kind))
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, IntrospectMethod, wrapperspb.String(header), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Verifier validates an Authorization header value.
type Verifier interface {
	Verify(ctx context.Context, header string, kind security.Kind) (*service.Result, error)
}

// Server implements SessionServiceServer.
type Server struct {
	verifier Verifier
	logger   *zap.Logger
}

// NewServer returns a Session gRPC server. If verifier is nil, Introspect returns Unimplemented.
func NewServer(verifier Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{verifier: verifier, logger: logger}
}

// Introspect verifies the credential in req and describes it.
func (s *Server) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.verifier == nil {
		return nil, status.Error(codes.Unimplemented, "method Introspect not implemented")
	}
	kind, err := kindFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.verifier.Verify(ctx, req.GetValue(), kind)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"principal_id": res.Principal.ID,
		"role":         string(res.Principal.Role),
		"session_id":   res.Claims.SessionID,
		"level":        string(res.Level),
		"kind":         string(res.Kind),
		"issued_at":    res.Claims.IssuedAtTime().Unix(),
		"expires_at":   expiresAt(res.Claims),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode credential")
	}
	return out, nil
}

func (s *Server) toStatus(err error) error {
	reason := service.Reason(err)
	switch {
	case service.IsAuthFailure(err):
		obs.RecordAuthRejection(reason)
		s.logger.Debug("introspect rejected", zap.String("reason", reason))
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, service.ErrStoreUnavailable):
		s.logger.Warn("introspect: store unavailable", zap.Error(err))
		return status.Error(codes.Unavailable, "service unavailable")
	}
	s.logger.Error("introspect failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func kindFromMetadata(ctx context.Context) (security.Kind, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return security.KindAccess, nil
	}
	vals := md.Get(TokenKindMetadataKey)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return security.KindAccess, nil
	}
	switch k := security.Kind(strings.ToUpper(strings.TrimSpace(vals[0]))); k {
	case security.KindAccess, security.KindRefresh:
		return k, nil
	}
	return "", status.Error(codes.InvalidArgument, "token-kind must be ACCESS or REFRESH")
}

func expiresAt(c *security.Claims) int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}
