package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otp-auth/backend/internal/devotp"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(store devotp.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(store).Register(r)
	return r
}

func TestGetOTP_Success(t *testing.T) {
	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "09123456789", "123456", time.Now().UTC().Add(time.Minute))

	w := httptest.NewRecorder()
	newRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dev/otp?phone=0912-345-6789", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "123456", body["otp"])
	require.Equal(t, devOTPNote, body["note"])
}

func TestGetOTP_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(devotp.NewMemoryStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dev/otp?phone=09123456789", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOTP_MissingPhone(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(devotp.NewMemoryStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dev/otp", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
