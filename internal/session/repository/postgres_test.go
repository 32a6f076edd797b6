package repository

import (
	"context"
	"testing"
	"time"

	"otp-auth/backend/internal/session/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn), mock
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "refresh_token_hash", "token_family_id", "ip", "user_agent",
		"state", "end_reason", "last_used_at", "expires_at", "ended_at", "created_at", "updated_at"})
}

func TestWithUserLock_CreateFlow(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs("session:u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE user_id = \$1 AND state = 'active' ORDER BY updated_at DESC FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sessionRows().
			AddRow("s1", "u1", "h1", "fam1", "", "", "active", "", nil, now.Add(time.Hour), nil, now, now))
	mock.ExpectExec(`UPDATE sessions SET state = \$2, end_reason = \$3, ended_at = \$4, updated_at = \$4\s+WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"s1"}), "revoked", domain.ReasonEvicted, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("s2", "u1", "h2", "fam2", "1.2.3.4", "ua", "active", nil, now.Add(time.Hour), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithUserLock(context.Background(), "u1", func(ctx context.Context, tx Tx) error {
		active, err := tx.ListActiveByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, domain.StateActive, active[0].State)
		require.Nil(t, active[0].LastUsedAt)
		require.NoError(t, tx.MarkEnded(ctx, []string{"s1"}, domain.StateRevoked, domain.ReasonEvicted, now))
		return tx.Create(ctx, &domain.Session{
			ID: "s2", UserID: "u1", RefreshTokenHash: "h2", FamilyID: "fam2", IP: "1.2.3.4", UserAgent: "ua",
			State: domain.StateActive, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithUserLock_RotationMustHitOneRow(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE sessions SET refresh_token_hash = \$2`).
		WithArgs("s1", "h2", "", "ua", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithUserLock(context.Background(), "u1", func(ctx context.Context, tx Tx) error {
		return tx.UpdateRotation(ctx, Rotation{ID: "s1", RefreshTokenHash: "h2", UserAgent: "ua", ExpiresAt: now.Add(time.Hour), At: now})
	})
	require.ErrorContains(t, err, "0 rows updated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEnded_EmptyIsNoop(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.WithUserLock(context.Background(), "u1", func(ctx context.Context, tx Tx) error {
		return tx.MarkEnded(ctx, nil, domain.StateExpired, domain.ReasonExpired, time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(time.Minute)

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sessionRows().
			AddRow("s1", "u1", "h1", "fam1", "1.2.3.4", "ua", "revoked", "logout", now, now.Add(time.Hour), ended, now, ended))
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sessionRows())

	s, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, domain.StateRevoked, s.State)
	require.Equal(t, "logout", s.EndReason)
	require.NotNil(t, s.EndedAt)
	require.True(t, s.EndedAt.Equal(ended))

	s, err = repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_UnknownState(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WillReturnRows(sessionRows().AddRow("s1", "u1", "h1", "fam1", "", "", "paused", "", nil, now, nil, now, now))

	_, err := repo.GetByID(context.Background(), "s1")
	require.Error(t, err)
}

func TestRevokeVariants(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE sessions SET state = \$2 .+ WHERE id = \$1 AND state = 'active'`).
		WithArgs("s1", "revoked", "logout", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET state = \$2 .+ WHERE user_id = \$1 AND state = 'active'`).
		WithArgs("u1", "revoked", "revoked", now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE sessions SET state = \$2 .+ WHERE token_family_id = \$1 AND state = 'active'`).
		WithArgs("fam1", "revoked", domain.ReasonReuseDetected, now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE sessions SET state = 'expired'.+WHERE state = 'active' AND expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.Revoke(ctx, "s1", "logout", now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = repo.RevokeAllByUser(ctx, "u1", "revoked", now)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	n, err = repo.RevokeFamily(ctx, "fam1", domain.ReasonReuseDetected, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	n, err = repo.ExpireBefore(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
