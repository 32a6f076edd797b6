package errmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"otp-auth/backend/internal/autherr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeAndHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantHTTP int
	}{
		{"cooldown", autherr.New(autherr.Cooldown, "op", "wait"), codes.ResourceExhausted, http.StatusForbidden},
		{"quota", autherr.New(autherr.QuotaExceeded, "op", "slow down"), codes.ResourceExhausted, http.StatusForbidden},
		{"invalid credential", autherr.New(autherr.InvalidCredential, "op", "bad"), codes.Unauthenticated, http.StatusUnauthorized},
		{"not found", autherr.New(autherr.NotFound, "op", "gone"), codes.NotFound, http.StatusNotFound},
		{"conflict", autherr.New(autherr.Conflict, "op", "dup"), codes.AlreadyExists, http.StatusConflict},
		{"invalid argument", autherr.New(autherr.InvalidArgument, "op", "phone"), codes.InvalidArgument, http.StatusBadRequest},
		{"internal", autherr.Wrap(autherr.Internal, "op", errors.New("db down")), codes.Internal, http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), codes.Internal, http.StatusInternalServerError},
		{"canceled", autherr.Wrap(autherr.Internal, "op", context.Canceled), codes.Canceled, StatusClientClosedRequest},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), codes.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantCode, Code(tt.err))
			require.Equal(t, tt.wantHTTP, HTTPStatus(tt.err))
		})
	}
}

func TestGRPC_HidesInternalCause(t *testing.T) {
	err := GRPC(autherr.Wrap(autherr.Internal, "session.Rotate", errors.New("pq: password authentication failed")))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "internal error", st.Message())
}

func TestGRPC_PassesStatusThrough(t *testing.T) {
	in := status.Error(codes.PermissionDenied, "nope")
	require.Equal(t, in, GRPC(in))
	require.NoError(t, GRPC(nil))
}

func TestAbort_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Abort(c, autherr.New(autherr.Cooldown, "otp.Generate", "please wait"))

	require.Equal(t, http.StatusForbidden, w.Code)
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, Body{StatusCode: 403, Error: "cooldown", Message: "please wait"}, body)
	require.True(t, c.IsAborted())
}
