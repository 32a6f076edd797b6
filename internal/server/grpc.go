// Package server assembles the gRPC server and the HTTP router from the service handlers.
package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "otp-auth/backend/api/authv1"
	sessionv1 "otp-auth/backend/api/sessionv1"
	"otp-auth/backend/internal/autherr"
	identityhandler "otp-auth/backend/internal/identity/handler"
	identityservice "otp-auth/backend/internal/identity/service"
	"otp-auth/backend/internal/ratelimit"
	"otp-auth/backend/internal/security"
	"otp-auth/backend/internal/server/interceptors"
	sessiondomain "otp-auth/backend/internal/session/domain"
	sessionhandler "otp-auth/backend/internal/session/handler"
	"otp-auth/backend/internal/telemetry"
)

// OperationRequestOTP is the rate limit key prefix for OTP requests on both transports.
const OperationRequestOTP = "request_otp"

// Deps holds the services and cross-cutting collaborators shared by both transports.
type Deps struct {
	// Auth is the auth service. If nil, auth RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// Sessions serves ListSessions/RevokeSession. If nil, those RPCs return Unimplemented.
	Sessions *sessionhandler.Sessions
	// Authorizer is consulted on logout. May be nil.
	Authorizer identityhandler.Authorizer
	// Tokens validates Bearer access tokens.
	Tokens *security.TokenProvider
	// SessionValidator rejects access tokens of ended sessions. May be nil.
	SessionValidator interceptors.SessionValidator
	// Limiter guards RequestOtp per client IP. May be nil.
	Limiter       ratelimit.Limiter
	OnRateLimited interceptors.RateLimitedFunc
	// Emitter receives one grpc_request event per RPC. May be nil.
	Emitter telemetry.EventEmitter
	// Health is the standard gRPC health service. If nil, it is not registered.
	Health *grpchealth.Server
}

// publicMethods do not require a Bearer token.
var publicMethods = map[string]bool{
	authv1.AuthService_RequestOtp_FullMethodName: true,
	authv1.AuthService_VerifyOtp_FullMethodName:  true,
	authv1.AuthService_Refresh_FullMethodName:    true,
	healthpb.Health_Check_FullMethodName:         true,
	healthpb.Health_Watch_FullMethodName:         true,
}

var rateLimited = map[string]string{
	authv1.AuthService_RequestOtp_FullMethodName: OperationRequestOTP,
}

var telemetrySkip = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a server with the interceptor chain and every service registered.
// Chain order: otelgrpc stats handler, client info, rate limit, auth, telemetry.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ClientInfoUnary(),
			interceptors.RateLimitUnary(deps.Limiter, rateLimited, deps.OnRateLimited),
			interceptors.AuthUnary(deps.Tokens, publicMethods, deps.SessionValidator),
			interceptors.TelemetryUnary(deps.Emitter, telemetrySkip),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - AuthService    → internal/identity/handler
//   - SessionService → internal/session/handler
//   - grpc.health.v1 → google.golang.org/grpc/health, fed by internal/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authv1.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Authorizer))
	sessionv1.RegisterSessionServiceServer(s, sessionhandler.NewServer(deps.Sessions))
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}

// SessionGetter loads a session by id.
type SessionGetter interface {
	Get(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// SessionActive returns a SessionValidator that accepts only usable sessions.
func SessionActive(store SessionGetter) interceptors.SessionValidator {
	return func(ctx context.Context, sessionID string) (bool, error) {
		if sessionID == "" {
			return false, nil
		}
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			if autherr.KindOf(err) == autherr.NotFound {
				return false, nil
			}
			return false, err
		}
		return sess.Usable(time.Now().UTC()), nil
	}
}
