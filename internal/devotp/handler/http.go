// Package handler serves the dev-only OTP lookup endpoint.
package handler

import (
	"net/http"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/devotp"
	"otp-auth/backend/internal/otp"
	"otp-auth/backend/internal/server/errmap"

	"github.com/gin-gonic/gin"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads codes from the dev store. Only registered when dev OTP is enabled and not production.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler that reads OTP codes from store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts GET /dev/otp.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/dev/otp", h.GetOTP)
}

// GetOTP returns the latest code for ?phone=. NotFound if missing or expired.
func (h *Handler) GetOTP(c *gin.Context) {
	phone, err := otp.NormalizePhone(c.Query("phone"))
	if err != nil {
		errmap.Abort(c, autherr.New(autherr.InvalidArgument, "devotp.GetOTP", "phone is required"))
		return
	}
	code, ok := h.store.Get(c.Request.Context(), phone)
	if !ok {
		errmap.Abort(c, autherr.New(autherr.NotFound, "devotp.GetOTP", "OTP not found or expired"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"phoneNumber": phone, "otp": code, "note": devOTPNote})
}
