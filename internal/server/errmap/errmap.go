// Package errmap translates autherr kinds into gRPC status codes and HTTP responses.
package errmap

import (
	"context"
	"errors"
	"net/http"

	"otp-auth/backend/internal/autherr"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusClientClosedRequest is the non-standard status used when the caller went away.
const StatusClientClosedRequest = 499

// Code returns the gRPC code for err.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	switch autherr.KindOf(err) {
	case autherr.Cooldown, autherr.QuotaExceeded:
		return codes.ResourceExhausted
	case autherr.InvalidCredential, autherr.Expired, autherr.Revoked:
		return codes.Unauthenticated
	case autherr.NotFound:
		return codes.NotFound
	case autherr.Conflict:
		return codes.AlreadyExists
	case autherr.InvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// HTTPStatus returns the HTTP status for err.
func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return StatusClientClosedRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.ResourceExhausted:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// message never exposes the cause of Internal errors.
func message(err error) string {
	switch Code(err) {
	case codes.Canceled:
		return "request canceled"
	case codes.DeadlineExceeded:
		return "request timed out"
	}
	return autherr.Message(err)
}

// GRPC converts err into a status error. Errors that already carry a status pass through.
func GRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), message(err))
}

// Body is the JSON error envelope of the HTTP API.
type Body struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Abort writes err as a JSON error response and stops the gin handler chain.
func Abort(c *gin.Context, err error) {
	code := HTTPStatus(err)
	c.AbortWithStatusJSON(code, Body{
		StatusCode: code,
		Error:      errorName(err),
		Message:    message(err),
	})
}

func errorName(err error) string {
	switch Code(err) {
	case codes.Canceled:
		return "canceled"
	case codes.DeadlineExceeded:
		return "deadline_exceeded"
	}
	return autherr.KindOf(err).String()
}
