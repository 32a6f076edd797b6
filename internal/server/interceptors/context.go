package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientKey   = contextKey{"client"}
)

// Identity is the caller authenticated by an access token.
type Identity struct {
	UserID    string
	SessionID string
	Phone     string
	Roles     []string
}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithIdentity returns a context carrying id. Handlers read it via IdentityFrom or GetUserID.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity set by the auth interceptor or middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.UserID, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.SessionID, ok
}

// WithClient records the caller's IP and user agent, as resolved by the transport.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey, clientInfo{ip: ip, userAgent: userAgent})
}

// ClientInfoUnary resolves the client IP and user agent once per RPC.
func ClientInfoUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(WithClient(ctx, ClientIP(ctx), UserAgent(ctx)), req)
	}
}

// ClientIP returns the client IP recorded by WithClient, else from gRPC metadata
// (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey).(clientInfo); ok && c.ip != "" {
		return c.ip
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns the user agent recorded by WithClient, else the user-agent metadata.
func UserAgent(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey).(clientInfo); ok && c.userAgent != "" {
		return c.userAgent
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("user-agent"); len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
