// Package service implements OTP issuance and verification.
package service

import (
	"context"
	"errors"
	"time"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/otp"
	"otp-auth/backend/internal/otp/domain"
	"otp-auth/backend/internal/otp/repository"

	"github.com/google/uuid"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTTL      = 2 * time.Minute
	DefaultCooldown = 60 * time.Second
	DefaultQuota    = 5
	DefaultWindow   = 10 * time.Minute
)

// Hasher hashes and verifies OTP codes.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, record string) bool
}

// Config holds the OTP policy.
type Config struct {
	TTL      time.Duration
	Cooldown time.Duration
	Quota    int
	Window   time.Duration
}

// Engine issues and verifies OTP challenges. All reads and writes for one phone number
// happen under Repository.WithPhoneLock, so concurrent requests cannot both pass the
// cooldown or both consume the same challenge.
type Engine struct {
	repo    repository.Repository
	hasher  Hasher
	cfg     Config
	now     func() time.Time
	newCode func() (string, error)
}

// NewEngine returns an Engine. Zero Config fields take the package defaults.
func NewEngine(repo repository.Repository, hasher Hasher, cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Engine{
		repo:    repo,
		hasher:  hasher,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: otp.GenerateCode,
	}
}

// Generate issues a new code for phone and returns it with its expiry. The caller delivers
// the code; only its hash is stored.
func (e *Engine) Generate(ctx context.Context, phone, ip string) (code string, expiresAt time.Time, err error) {
	const op = "otp.Generate"
	err = e.repo.WithPhoneLock(ctx, phone, func(ctx context.Context, tx repository.Tx) error {
		now := e.now()

		latest, err := tx.Latest(ctx, phone)
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		if latest != nil && now.Sub(latest.CreatedAt) < e.cfg.Cooldown {
			return autherr.New(autherr.Cooldown, op, "please wait before requesting another code")
		}

		n, err := tx.CountCreatedSince(ctx, phone, now.Add(-e.cfg.Window))
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		if n >= e.cfg.Quota {
			return autherr.New(autherr.QuotaExceeded, op, "too many codes requested, try again later")
		}

		c, err := e.newCode()
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		hash, err := e.hasher.Hash(c)
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		ch := &domain.Challenge{
			ID:          uuid.New().String(),
			PhoneNumber: phone,
			CodeHash:    hash,
			ExpiresAt:   now.Add(e.cfg.TTL),
			IP:          ip,
			CreatedAt:   now,
		}
		if err := tx.Create(ctx, ch); err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		code, expiresAt = c, ch.ExpiresAt
		return nil
	})
	if err != nil {
		return "", time.Time{}, classify(op, err)
	}
	return code, expiresAt, nil
}

// Verify checks code against the newest unused challenge for phone and consumes it on success.
// Expiry is reported as Expired, never as InvalidCredential.
func (e *Engine) Verify(ctx context.Context, phone, code string) error {
	const op = "otp.Verify"
	err := e.repo.WithPhoneLock(ctx, phone, func(ctx context.Context, tx repository.Tx) error {
		now := e.now()

		ch, err := tx.LatestUnused(ctx, phone)
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		if ch == nil {
			return autherr.New(autherr.NotFound, op, "no pending code")
		}
		if ch.Expired(now) {
			return autherr.New(autherr.Expired, op, "code expired")
		}
		if !e.hasher.Verify(code, ch.CodeHash) {
			return autherr.New(autherr.InvalidCredential, op, "wrong code")
		}
		ok, err := tx.MarkUsed(ctx, ch.ID, now)
		if err != nil {
			return autherr.Wrap(autherr.Internal, op, err)
		}
		if !ok {
			return autherr.New(autherr.NotFound, op, "no pending code")
		}
		return nil
	})
	return classify(op, err)
}

// classify keeps classified errors and wraps anything else (lock or commit failures) as Internal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}
	return autherr.Wrap(autherr.Internal, op, err)
}
