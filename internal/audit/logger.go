package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"otp-auth/backend/internal/audit/domain"
	auditrepo "otp-auth/backend/internal/audit/repository"
)

// Actions recorded by the authentication flows.
const (
	ActionOTPRequested         = "otp_requested"
	ActionLogin                = "login"
	ActionLoginFailed          = "login_failed"
	ActionRefresh              = "refresh"
	ActionRefreshFailed        = "refresh_failed"
	ActionRefreshReuseDetected = "refresh_reuse_detected"
	ActionLogout               = "logout"
	ActionSessionRevoked       = "session_revoked"
)

// Resources.
const (
	ResourceAuth    = "auth"
	ResourceSession = "session"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. metadata is stored as a JSON object.
// Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	var meta string
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	// The request may already be cancelled when an audit is written for a failure.
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Err(err).Str("action", action).Str("resource", resource).Msg("audit: failed to log event")
	}
}
