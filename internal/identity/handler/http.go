package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	authv1 "otp-auth/backend/api/authv1"
	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/identity/service"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

// HTTPHandler serves the REST auth routes.
type HTTPHandler struct {
	auth  *service.AuthService
	authz Authorizer
}

// NewHTTPHandler returns the REST counterpart of AuthServer.
func NewHTTPHandler(auth *service.AuthService, authz Authorizer) *HTTPHandler {
	return &HTTPHandler{auth: auth, authz: authz}
}

// Register mounts the /auth routes. otpLimit guards request-otp and requireAuth guards
// logout; either may be nil.
func (h *HTTPHandler) Register(r gin.IRouter, otpLimit, requireAuth gin.HandlerFunc) {
	g := r.Group("/auth")
	g.POST("/request-otp", chain(otpLimit, h.RequestOTP)...)
	g.POST("/verify-otp", h.VerifyOTP)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", chain(requireAuth, h.Logout)...)
}

func chain(mw, h gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{mw, h}
}

func badRequest(c *gin.Context, op string, err error) {
	errmap.Abort(c, autherr.New(autherr.InvalidArgument, op, "invalid request body: "+err.Error()))
}

// RequestOTP handles POST /auth/request-otp.
func (h *HTTPHandler) RequestOTP(c *gin.Context) {
	var req authv1.RequestOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "http.RequestOTP", err)
		return
	}
	ctx := c.Request.Context()
	ack, err := h.auth.RequestOTP(ctx, req.Phone, clientFrom(ctx))
	if err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, authv1.RequestOtpResponse{Message: ack.Message})
}

// VerifyOTP handles POST /auth/verify-otp.
func (h *HTTPHandler) VerifyOTP(c *gin.Context) {
	var req authv1.VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "http.VerifyOTP", err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.auth.VerifyOTP(ctx, req.Phone, req.Otp, clientFrom(ctx))
	if err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Refresh handles POST /auth/refresh.
func (h *HTTPHandler) Refresh(c *gin.Context) {
	var req authv1.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "http.Refresh", err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.auth.RefreshTokens(ctx, req.RefreshToken, clientFrom(ctx))
	if err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Logout handles POST /auth/logout.
func (h *HTTPHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok || id.UserID == "" {
		errmap.Abort(c, autherr.New(autherr.InvalidCredential, "http.Logout", "missing or invalid authorization"))
		return
	}
	allowed, err := authorizeLogout(ctx, h.authz, id)
	if err != nil {
		errmap.Abort(c, autherr.Wrap(autherr.Internal, "http.Logout", err))
		return
	}
	if !allowed {
		errmap.Abort(c, autherr.New(autherr.InvalidCredential, "http.Logout", "not allowed"))
		return
	}
	ack, err := h.auth.Logout(ctx, id.UserID)
	if err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, authv1.LogoutResponse{Message: ack.Message})
}
