package repository

import (
	"context"
	"time"

	"otp-auth/backend/internal/otp/domain"
)

// Repository defines persistence for OTP challenges.
type Repository interface {
	// WithPhoneLock runs fn with exclusive access to the challenges of phone. Everything fn
	// does through tx commits together, or not at all when fn returns an error.
	WithPhoneLock(ctx context.Context, phone string, fn func(ctx context.Context, tx Tx) error) error
	// DeleteCreatedBefore purges challenges created before cutoff and returns how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx is the per-phone unit of work handed to WithPhoneLock.
type Tx interface {
	// Latest returns the newest challenge for phone regardless of status, or nil.
	Latest(ctx context.Context, phone string) (*domain.Challenge, error)
	// CountCreatedSince counts challenges for phone created at or after since.
	CountCreatedSince(ctx context.Context, phone string, since time.Time) (int, error)
	// LatestUnused returns the newest unused challenge for phone, or nil.
	LatestUnused(ctx context.Context, phone string) (*domain.Challenge, error)
	Create(ctx context.Context, c *domain.Challenge) error
	// MarkUsed flips an unused challenge to used. It reports false when the row was
	// already used or does not exist.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}
