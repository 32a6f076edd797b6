package interceptors

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"otp-auth/backend/internal/ratelimit"
)

// RateLimitedFunc is told about every rejected call.
type RateLimitedFunc func()

// RateLimitKey is the limiter key for one client IP on one operation. The HTTP
// middleware uses the same keys so both transports share a budget.
func RateLimitKey(operation, ip string) string {
	return operation + ":" + ip
}

// RateLimitUnary limits the methods in limited per client IP. limited maps full method
// names to the operation name used in the key. Limiter errors fail open.
func RateLimitUnary(l ratelimit.Limiter, limited map[string]string, onLimited RateLimitedFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		op, ok := limited[info.FullMethod]
		if !ok || l == nil {
			return handler(ctx, req)
		}
		ip := ClientIP(ctx)
		d, err := l.Allow(ctx, RateLimitKey(op, ip))
		if err != nil {
			log.Err(err).Str("method", info.FullMethod).Msg("ratelimit: limiter unavailable, allowing request")
			return handler(ctx, req)
		}
		if !d.Allowed {
			if onLimited != nil {
				onLimited()
			}
			secs := int(d.RetryAfter.Seconds() + 0.999)
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(secs)))
			log.Warn().Str("method", info.FullMethod).Str("ip", ip).Msg("ratelimit: request rejected")
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return handler(ctx, req)
	}
}
