package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the authentication flows and the gRPC interceptor.
const (
	EventOTPRequested   = "otp_requested"
	EventLogin          = "login"
	EventLoginFailed    = "login_failed"
	EventRefresh        = "refresh"
	EventRefreshFailed  = "refresh_failed"
	EventReuseDetected  = "refresh_reuse_detected"
	EventLogout         = "logout"
	EventSessionRevoked = "session_revoked"
	EventGRPCRequest    = "grpc_request"
)

// AuthEvent is one authentication telemetry event. It is serialized as JSON onto Kafka
// and relayed to Loki. Phone is always masked.
type AuthEvent struct {
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Outcome   string          `json:"outcome,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
