package interceptors

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"otp-auth/backend/internal/security"
)

const bearerPrefix = "bearer "

// SessionValidator reports whether the session an access token was issued for is still
// active. It lets logout take effect before the access token expires.
type SessionValidator func(ctx context.Context, sessionID string) (bool, error)

// AccessTokenValidator validates access tokens.
type AccessTokenValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// Authenticate validates a raw Bearer token and, when validator is non-nil, its session.
// Both transports use it.
func Authenticate(ctx context.Context, tokens AccessTokenValidator, validator SessionValidator, token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}
	claims, err := tokens.ValidateAccess(token)
	if err != nil {
		return Identity{}, false
	}
	if validator != nil {
		ok, err := validator(ctx, claims.SessionID)
		if err != nil {
			log.Err(err).Str("session_id", claims.SessionID).Msg("auth: session validation failed")
			return Identity{}, false
		}
		if !ok {
			return Identity{}, false
		}
	}
	return Identity{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Phone:     claims.Phone,
		Roles:     claims.Roles,
	}, true
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets the caller identity in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (RequestOtp, VerifyOtp, Refresh, health checks). validator may be nil.
func AuthUnary(tokens AccessTokenValidator, publicMethods map[string]bool, validator SessionValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		id, ok := Authenticate(ctx, tokens, validator, extractBearer(ctx))
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		return handler(WithIdentity(ctx, id), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return ParseBearer(vals[0])
}

// ParseBearer extracts the token from an Authorization header value, or "" if malformed.
func ParseBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
