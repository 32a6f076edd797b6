package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/session/domain"

	"github.com/lib/pq"
)

const sessionColumns = `id, user_id, refresh_token_hash, token_family_id, COALESCE(ip, ''), COALESCE(user_agent, ''),
	state, COALESCE(end_reason, ''), last_used_at, expires_at, ended_at, created_at, updated_at`

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// WithUserLock opens a transaction and takes a per-user advisory lock before running fn.
// Rows read through tx.ListActiveByUser are additionally locked FOR UPDATE.
func (r *PostgresRepository) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, q db.DBTX) error {
		if err := db.AdvisoryXactLock(ctx, q, "session:"+userID); err != nil {
			return fmt.Errorf("session lock: %w", err)
		}
		return fn(ctx, &pgTx{q: q})
	})
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListByUser returns all sessions for the user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return queryAll(ctx, r.db, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListByFamily returns all sessions of the token family.
func (r *PostgresRepository) ListByFamily(ctx context.Context, familyID string) ([]*domain.Session, error) {
	return queryAll(ctx, r.db, `SELECT `+sessionColumns+` FROM sessions WHERE token_family_id = $1 ORDER BY created_at DESC`, familyID)
}

func (r *PostgresRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (int64, error) {
	return r.end(ctx, `id = $1`, id, domain.StateRevoked, reason, at)
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	return r.end(ctx, `user_id = $1`, userID, domain.StateRevoked, reason, at)
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error) {
	return r.end(ctx, `token_family_id = $1`, familyID, domain.StateRevoked, reason, at)
}

func (r *PostgresRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET state = 'expired', end_reason = 'expired', ended_at = $1, updated_at = $1
		 WHERE state = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("session expire: %w", err)
	}
	return res.RowsAffected()
}

// end transitions active rows matching where to state. Terminal rows are never touched.
func (r *PostgresRepository) end(ctx context.Context, where, arg string, state domain.State, reason string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET state = $2, end_reason = $3, ended_at = $4, updated_at = $4
		 WHERE `+where+` AND state = 'active'`, arg, string(state), reason, at)
	if err != nil {
		return 0, fmt.Errorf("session %s: %w", state, err)
	}
	return res.RowsAffected()
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return queryAll(ctx, t.q,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND state = 'active' ORDER BY updated_at DESC FOR UPDATE`, userID)
}

func (t *pgTx) Create(ctx context.Context, s *domain.Session) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, token_family_id, ip, user_agent, state,
		   last_used_at, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.FamilyID, s.IP, s.UserAgent, string(s.State),
		nullTime(s.LastUsedAt), s.ExpiresAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRotation(ctx context.Context, r Rotation) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = $2,
		   ip = COALESCE(NULLIF($3, ''), ip), user_agent = COALESCE(NULLIF($4, ''), user_agent),
		   last_used_at = $5, expires_at = $6, updated_at = $5
		 WHERE id = $1 AND state = 'active'`,
		r.ID, r.RefreshTokenHash, r.IP, r.UserAgent, r.At, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session rotate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("session rotate: %d rows updated", n)
	}
	return nil
}

func (t *pgTx) MarkEnded(ctx context.Context, ids []string, state domain.State, reason string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.q.ExecContext(ctx,
		`UPDATE sessions SET state = $2, end_reason = $3, ended_at = $4, updated_at = $4
		 WHERE id = ANY($1) AND state = 'active'`,
		pq.Array(ids), string(state), reason, at)
	if err != nil {
		return fmt.Errorf("session end: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var s domain.Session
	var state string
	var lastUsed, ended sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.FamilyID, &s.IP, &s.UserAgent,
		&state, &s.EndReason, &lastUsed, &s.ExpiresAt, &ended, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.State, err = domain.ParseState(state); err != nil {
		return nil, err
	}
	s.LastUsedAt = nullTimeToPtr(lastUsed)
	s.EndedAt = nullTimeToPtr(ended)
	return &s, nil
}

func queryAll(ctx context.Context, q db.DBTX, query string, args ...any) ([]*domain.Session, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session query: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
