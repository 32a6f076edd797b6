// Package middleware holds the gin counterparts of the gRPC interceptors.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/ratelimit"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

// ClientInfo records the client IP and user agent on the request context, so audit
// entries and sessions see the same values as over gRPC.
func ClientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := interceptors.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth rejects requests without a valid Bearer access token and stores the caller
// identity on the request context. validator may be nil.
func RequireAuth(tokens interceptors.AccessTokenValidator, validator interceptors.SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := interceptors.ParseBearer(c.GetHeader("Authorization"))
		id, ok := interceptors.Authenticate(c.Request.Context(), tokens, validator, token)
		if !ok {
			errmap.Abort(c, autherr.New(autherr.InvalidCredential, "http.auth", "missing or invalid authorization"))
			return
		}
		c.Request = c.Request.WithContext(interceptors.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RateLimit limits operation per client IP, sharing keys with the gRPC interceptor.
// Limiter errors fail open.
func RateLimit(l ratelimit.Limiter, operation string, onLimited interceptors.RateLimitedFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		d, err := l.Allow(c.Request.Context(), interceptors.RateLimitKey(operation, c.ClientIP()))
		if err != nil {
			log.Err(err).Str("operation", operation).Msg("ratelimit: limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !d.Allowed {
			if onLimited != nil {
				onLimited()
			}
			c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds()+0.999)))
			errmap.Abort(c, autherr.New(autherr.QuotaExceeded, "http.ratelimit", "too many requests"))
			return
		}
		c.Next()
	}
}

// AccessLog writes one zerolog line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= 500 {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("http request")
	}
}
