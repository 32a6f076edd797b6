package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/user/domain"

	"github.com/lib/pq"
)

const userColumns = `id, phone_number, COALESCE(name, ''), COALESCE(email, ''), is_active, roles, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByPhone returns the user with the given phone number, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
}

// Create persists the user to the database. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return autherr.Wrap(autherr.InvalidArgument, "user.Create", err)
	}
	name := sql.NullString{String: u.Name, Valid: u.Name != ""}
	email := sql.NullString{String: u.Email, Valid: u.Email != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, phone_number, name, email, is_active, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.PhoneNumber, name, email, u.IsActive, pq.Array(u.Roles), u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return autherr.Wrap(autherr.Conflict, "user.Create", err)
	}
	if err != nil {
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetRoles(ctx context.Context, id string, roles []string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET roles = $2, updated_at = $3 WHERE id = $1`, id, pq.Array(roles), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("user set roles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autherr.New(autherr.NotFound, "user.SetRoles", "user not found")
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.Email, &u.IsActive,
		pq.Array(&u.Roles), &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user query: %w", err)
	}
	return &u, nil
}
