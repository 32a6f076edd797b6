package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/otp/domain"
)

const challengeColumns = `id, phone_number, code_hash, expires_at, used, used_at, COALESCE(ip, ''), created_at`

// PostgresRepository stores challenges in otp_challenges. Per-phone serialization uses a
// transaction-scoped advisory lock, so concurrent servers share the same guarantee.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP challenge repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// WithPhoneLock opens a transaction, takes the advisory lock for phone, and runs fn.
func (r *PostgresRepository) WithPhoneLock(ctx context.Context, phone string, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, q db.DBTX) error {
		if err := db.AdvisoryXactLock(ctx, q, "otp:"+phone); err != nil {
			return fmt.Errorf("otp lock: %w", err)
		}
		return fn(ctx, &pgTx{q: q})
	})
}

// DeleteCreatedBefore removes challenges created before cutoff.
func (r *PostgresRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("otp purge: %w", err)
	}
	return res.RowsAffected()
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) Latest(ctx context.Context, phone string) (*domain.Challenge, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE phone_number = $1 ORDER BY created_at DESC LIMIT 1`, phone)
	return scanChallenge(row)
}

func (t *pgTx) CountCreatedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM otp_challenges WHERE phone_number = $1 AND created_at >= $2`, phone, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("otp count: %w", err)
	}
	return n, nil
}

func (t *pgTx) LatestUnused(ctx context.Context, phone string) (*domain.Challenge, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE phone_number = $1 AND used = FALSE ORDER BY created_at DESC LIMIT 1`, phone)
	return scanChallenge(row)
}

func (t *pgTx) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO otp_challenges (id, phone_number, code_hash, expires_at, used, ip, created_at) VALUES ($1, $2, $3, $4, FALSE, NULLIF($5, ''), $6)`,
		c.ID, c.PhoneNumber, c.CodeHash, c.ExpiresAt, c.IP, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("otp insert: %w", err)
	}
	return nil
}

func (t *pgTx) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE otp_challenges SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE`, id, at)
	if err != nil {
		return false, fmt.Errorf("otp mark used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanChallenge(row *sql.Row) (*domain.Challenge, error) {
	var c domain.Challenge
	var usedAt sql.NullTime
	err := row.Scan(&c.ID, &c.PhoneNumber, &c.CodeHash, &c.ExpiresAt, &c.Used, &usedAt, &c.IP, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("otp scan: %w", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}
