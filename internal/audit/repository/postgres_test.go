package repository

import (
	"context"
	"testing"
	"time"

	"otp-auth/backend/internal/audit/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()
	repo := NewPostgresRepository(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs("a1", nil, "login_failed", "auth", "10.0.0.1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM audit_logs WHERE user_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "ip", "metadata", "created_at"}).
			AddRow("a2", "u1", "login", "auth", "10.0.0.1", `{"session_id":"s1"}`, now))

	require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{
		ID: "a1", Action: "login_failed", Resource: "auth", IP: "10.0.0.1", CreatedAt: now,
	}))
	list, err := repo.ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "login", list[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
