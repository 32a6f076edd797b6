package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"otp-auth/backend/internal/otp/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn), mock
}

func challengeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "phone_number", "code_hash", "expires_at", "used", "used_at", "ip", "created_at"})
}

func TestWithPhoneLock_GenerateFlow(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs("otp:0912").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM otp_challenges WHERE phone_number = \$1 ORDER BY created_at DESC LIMIT 1`).
		WithArgs("0912").
		WillReturnRows(challengeRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM otp_challenges`).
		WithArgs("0912", now.Add(-10*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO otp_challenges`).
		WithArgs("c1", "0912", "hash", now.Add(2*time.Minute), "1.2.3.4", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithPhoneLock(context.Background(), "0912", func(ctx context.Context, tx Tx) error {
		latest, err := tx.Latest(ctx, "0912")
		require.NoError(t, err)
		require.Nil(t, latest)
		n, err := tx.CountCreatedSince(ctx, "0912", now.Add(-10*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 2, n)
		return tx.Create(ctx, &domain.Challenge{
			ID: "c1", PhoneNumber: "0912", CodeHash: "hash",
			ExpiresAt: now.Add(2 * time.Minute), IP: "1.2.3.4", CreatedAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPhoneLock_VerifyFlow(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM otp_challenges WHERE phone_number = \$1 AND used = FALSE`).
		WithArgs("0912").
		WillReturnRows(challengeRows().AddRow("c1", "0912", "hash", now.Add(time.Minute), false, nil, "", now))
	mock.ExpectExec(`UPDATE otp_challenges SET used = TRUE, used_at = \$2 WHERE id = \$1 AND used = FALSE`).
		WithArgs("c1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithPhoneLock(context.Background(), "0912", func(ctx context.Context, tx Tx) error {
		c, err := tx.LatestUnused(ctx, "0912")
		require.NoError(t, err)
		require.NotNil(t, c)
		require.Equal(t, "c1", c.ID)
		require.Nil(t, c.UsedAt)
		ok, err := tx.MarkUsed(ctx, c.ID, now)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed_AlreadyUsed(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE otp_challenges`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.WithPhoneLock(context.Background(), "0912", func(ctx context.Context, tx Tx) error {
		ok, err := tx.MarkUsed(ctx, "c1", time.Now())
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPhoneLock_RollsBackOnError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := errors.New("cooldown")
	err := repo.WithPhoneLock(context.Background(), "0912", func(ctx context.Context, tx Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPhoneLock_LockFailure(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	called := false
	err := repo.WithPhoneLock(context.Background(), "0912", func(ctx context.Context, tx Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCreatedBefore(t *testing.T) {
	repo, mock := newMock(t)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM otp_challenges WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteCreatedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
