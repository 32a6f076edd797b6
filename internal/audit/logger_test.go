package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"otp-auth/backend/internal/audit/domain"
	auditrepo "otp-auth/backend/internal/audit/repository"
)

type failingRepo struct{}

func (failingRepo) Create(context.Context, *domain.AuditLog) error { return errors.New("db down") }
func (failingRepo) ListByUser(context.Context, string, int) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })

	logger.LogEvent(context.Background(), "user-1", ActionLogin, ResourceAuth, map[string]string{"session_id": "s1"})

	entries := repo.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.UserID != "user-1" || e.Action != ActionLogin || e.Resource != ResourceAuth || e.IP != "192.168.1.1" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Error("entry should carry an id and timestamp")
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil || meta["session_id"] != "s1" {
		t.Errorf("metadata = %q", e.Metadata)
	}
}

func TestLogger_DefaultsAndFailures(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	NewLogger(repo, nil).LogEvent(context.Background(), "", ActionLoginFailed, ResourceAuth, nil)
	e := repo.All()[0]
	if e.IP != "unknown" || e.Metadata != "" {
		t.Errorf("entry = %+v, want unknown ip and empty metadata", e)
	}

	// must not panic or propagate
	NewLogger(failingRepo{}, nil).LogEvent(context.Background(), "u", ActionLogout, ResourceAuth, nil)
	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "u", ActionLogout, ResourceAuth, nil)
}

func TestLogger_CancelledRequestStillAudits(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewLogger(repo, nil).LogEvent(ctx, "u", ActionRefreshFailed, ResourceAuth, nil)
	if len(repo.All()) != 1 {
		t.Error("audit entry should be written even after the request is cancelled")
	}
}
