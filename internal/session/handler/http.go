package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	sessionv1 "otp-auth/backend/api/sessionv1"
	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

// HTTPHandler serves the REST session routes.
type HTTPHandler struct {
	sessions *Sessions
}

func NewHTTPHandler(sessions *Sessions) *HTTPHandler {
	return &HTTPHandler{sessions: sessions}
}

// Register mounts GET /sessions/me and DELETE /sessions/:id behind requireAuth.
func (h *HTTPHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	g := r.Group("/sessions", requireAuth)
	g.GET("/me", h.ListMine)
	g.DELETE("/:id", h.Revoke)
}

func identity(c *gin.Context) (interceptors.Identity, bool) {
	id, ok := interceptors.IdentityFrom(c.Request.Context())
	if !ok {
		errmap.Abort(c, autherr.New(autherr.InvalidCredential, "http.sessions", "missing or invalid authorization"))
	}
	return id, ok
}

// ListMine handles GET /sessions/me. ?active=true drops ended sessions.
func (h *HTTPHandler) ListMine(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.sessions.List(c.Request.Context(), id, c.Query("active") == "true")
	if err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionv1.ListSessionsResponse{Sessions: list})
}

// Revoke handles DELETE /sessions/:id.
func (h *HTTPHandler) Revoke(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), id, c.Param("id")); err != nil {
		errmap.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionv1.RevokeSessionResponse{Message: "Session revoked"})
}
