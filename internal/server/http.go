package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"otp-auth/backend/internal/devotp"
	devotphandler "otp-auth/backend/internal/devotp/handler"
	"otp-auth/backend/internal/health"
	identityhandler "otp-auth/backend/internal/identity/handler"
	"otp-auth/backend/internal/server/middleware"
	sessionhandler "otp-auth/backend/internal/session/handler"
)

// HTTPDeps are the HTTP-only collaborators.
type HTTPDeps struct {
	// Checker backs /readyz. If nil, /readyz always answers ready.
	Checker *health.Checker
	// Metrics serves /metrics. If nil, the route is not registered.
	Metrics http.Handler
	// DevOTP enables GET /dev/otp. Set only when dev OTP mode is on.
	DevOTP devotp.Store
}

// NewHTTPRouter returns the gin engine serving the REST API and the operational routes.
func NewHTTPRouter(deps Deps, h HTTPDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(), middleware.ClientInfo())

	r.GET("/healthz", health.Liveness)
	checker := h.Checker
	if checker == nil {
		checker = health.NewChecker(nil, nil)
	}
	r.GET("/readyz", checker.Readiness)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	requireAuth := middleware.RequireAuth(deps.Tokens, deps.SessionValidator)
	if deps.Auth != nil {
		otpLimit := middleware.RateLimit(deps.Limiter, OperationRequestOTP, deps.OnRateLimited)
		identityhandler.NewHTTPHandler(deps.Auth, deps.Authorizer).Register(r, otpLimit, requireAuth)
	}
	if deps.Sessions != nil {
		sessionhandler.NewHTTPHandler(deps.Sessions).Register(r, requireAuth)
	}
	if h.DevOTP != nil {
		devotphandler.NewHandler(h.DevOTP).Register(r)
	}
	return r
}
