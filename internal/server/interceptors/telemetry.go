package interceptors

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"otp-auth/backend/internal/audit"
	"otp-auth/backend/internal/telemetry"
	"otp-auth/backend/internal/telemetry/domain"
)

// grpcRequestMetadata is the JSON shape stored in AuthEvent.Metadata for grpc_request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// TelemetryUnary returns a unary server interceptor that emits a telemetry event after each RPC.
// Best-effort: failures are logged and do not fail the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. health checks).
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		ar := audit.ParseFullMethod(info.FullMethod)
		meta := grpcRequestMetadata{
			FullMethod: info.FullMethod,
			Action:     ar.Action,
			Resource:   ar.Resource,
			StatusCode: code.String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(ctx),
		}
		metaJSON, _ := json.Marshal(meta)
		outcome := "ok"
		if err != nil {
			outcome = code.String()
		}
		id, _ := IdentityFrom(ctx)
		telemetry.EmitAsync(ctx, emitter, &domain.AuthEvent{
			EventType: domain.EventGRPCRequest,
			Source:    "grpc_interceptor",
			Outcome:   outcome,
			UserID:    id.UserID,
			SessionID: id.SessionID,
			Metadata:  metaJSON,
		})
		return resp, err
	}
}
