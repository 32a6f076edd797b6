package repository

import (
	"context"
	"time"

	"otp-auth/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	// WithUserLock runs fn with exclusive access to the sessions of userID. Writes made
	// through tx commit together when fn returns nil.
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUser returns every session of userID in any state, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// ListByFamily returns every session of a token family in any state.
	ListByFamily(ctx context.Context, familyID string) ([]*domain.Session, error)
	// Revoke moves one active session to revoked. Returns the number of rows changed.
	Revoke(ctx context.Context, id, reason string, at time.Time) (int64, error)
	// RevokeAllByUser moves every active session of userID to revoked.
	RevokeAllByUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
	// RevokeFamily moves every active session of familyID to revoked.
	RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error)
	// ExpireBefore moves active sessions with expires_at <= now to expired.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

// Rotation is the in-place update applied by a successful refresh. Empty IP and
// UserAgent keep the stored values.
type Rotation struct {
	ID               string
	RefreshTokenHash string
	IP               string
	UserAgent        string
	ExpiresAt        time.Time
	At               time.Time
}

// Tx is the per-user unit of work handed to WithUserLock.
type Tx interface {
	// ListActiveByUser returns the active sessions of userID locked for update, most
	// recently updated first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateRotation(ctx context.Context, r Rotation) error
	// MarkEnded moves the given active sessions to a terminal state.
	MarkEnded(ctx context.Context, ids []string, state domain.State, reason string, at time.Time) error
}
