package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"otp-auth/backend/internal/ratelimit"
	"otp-auth/backend/internal/security"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", handlers...)
	return r
}

func TestRequireAuth(t *testing.T) {
	tokens := security.NewTestTokenProvider()
	token, _, _, err := tokens.IssueAccess(security.AccessSubject{UserID: "user-1", SessionID: "session-1"})
	require.NoError(t, err)

	var seen interceptors.Identity
	r := newEngine(RequireAuth(tokens, nil), func(c *gin.Context) {
		seen, _ = interceptors.IdentityFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "user-1", seen.UserID)
	require.Equal(t, "session-1", seen.SessionID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body errmap.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, http.StatusUnauthorized, body.StatusCode)
}

func TestRequireAuth_RevokedSession(t *testing.T) {
	tokens := security.NewTestTokenProvider()
	token, _, _, err := tokens.IssueAccess(security.AccessSubject{UserID: "user-1", SessionID: "session-1"})
	require.NoError(t, err)
	revoked := func(ctx context.Context, id string) (bool, error) { return false, nil }

	r := newEngine(RequireAuth(tokens, revoked), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	limited := 0
	r := newEngine(RateLimit(ratelimit.NewMemoryLimiter(1, time.Minute), "request_otp", func() { limited++ }),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Equal(t, 1, limited)
}

func TestClientInfo(t *testing.T) {
	var ip, ua string
	r := newEngine(ClientInfo(), func(c *gin.Context) {
		ip = interceptors.ClientIP(c.Request.Context())
		ua = interceptors.UserAgent(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("User-Agent", "curl/8")
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "10.1.2.3", ip)
	require.Equal(t, "curl/8", ua)
}
