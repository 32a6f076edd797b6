// Package service implements the refresh-session store: creation with a per-user cap,
// validation and in-place rotation of refresh secrets, and revocation.
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/ids"
	"otp-auth/backend/internal/session/domain"
	"otp-auth/backend/internal/session/repository"

	"github.com/google/uuid"
)

// DefaultMaxActive is the per-user cap on active sessions.
const DefaultMaxActive = 5

// Hasher hashes and verifies refresh secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, record string) bool
}

// Observer receives session lifecycle counts. Optional.
type Observer interface {
	SessionsEvicted(n int)
	SessionsSwept(n int64)
}

type noopObserver struct{}

func (noopObserver) SessionsEvicted(int)  {}
func (noopObserver) SessionsSwept(int64) {}

// Config configures a Store.
type Config struct {
	// MaxActive caps concurrently active sessions per user. Zero means DefaultMaxActive.
	MaxActive int
	Observer  Observer
}

// CreateParams describes a new session. FamilyID is empty for a fresh login.
type CreateParams struct {
	UserID    string
	RawSecret string
	IP        string
	UserAgent string
	TTL       time.Duration
	FamilyID  string
}

// RotateParams describes a refresh: OldSecret must match an active session of UserID,
// whose hash is then replaced by the hash of NewSecret.
type RotateParams struct {
	UserID    string
	OldSecret string
	NewSecret string
	TTL       time.Duration
	IP        string
	UserAgent string
}

// Store manages refresh sessions on top of a Repository.
type Store struct {
	repo      repository.Repository
	hasher    Hasher
	maxActive int
	observer  Observer
	now       func() time.Time
}

// NewStore returns a Store.
func NewStore(repo repository.Repository, hasher Hasher, cfg Config) *Store {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultMaxActive
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Store{
		repo:      repo,
		hasher:    hasher,
		maxActive: cfg.MaxActive,
		observer:  cfg.Observer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new active session for the hashed secret. Active sessions already past
// their expiry are expired first; then the oldest active sessions are evicted until the new
// one fits under the cap.
func (s *Store) Create(ctx context.Context, p CreateParams) (*domain.Session, error) {
	const op = "session.Create"
	if p.UserID == "" || p.RawSecret == "" || p.TTL <= 0 {
		return nil, autherr.New(autherr.InvalidArgument, op, "user, secret and ttl are required")
	}
	hash, err := s.hasher.Hash(p.RawSecret)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	familyID := p.FamilyID
	if familyID == "" {
		if familyID, err = ids.NewULID(s.now()); err != nil {
			return nil, autherr.Wrap(autherr.Internal, op, err)
		}
	}

	var created *domain.Session
	evicted := 0
	err = s.repo.WithUserLock(ctx, p.UserID, func(ctx context.Context, tx repository.Tx) error {
		now := s.now()
		active, err := tx.ListActiveByUser(ctx, p.UserID)
		if err != nil {
			return err
		}

		var stale []string
		live := active[:0:0]
		for _, a := range active {
			if a.Usable(now) {
				live = append(live, a)
			} else {
				stale = append(stale, a.ID)
			}
		}
		if err := tx.MarkEnded(ctx, stale, domain.StateExpired, domain.ReasonExpired, now); err != nil {
			return err
		}

		sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
		var evict []string
		for len(live)-len(evict) >= s.maxActive {
			evict = append(evict, live[len(evict)].ID)
		}
		if err := tx.MarkEnded(ctx, evict, domain.StateRevoked, domain.ReasonEvicted, now); err != nil {
			return err
		}
		evicted = len(evict)

		sess := &domain.Session{
			ID:               uuid.New().String(),
			UserID:           p.UserID,
			RefreshTokenHash: hash,
			FamilyID:         familyID,
			IP:               p.IP,
			UserAgent:        p.UserAgent,
			State:            domain.StateActive,
			ExpiresAt:        now.Add(p.TTL),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(ctx, sess); err != nil {
			return err
		}
		created = sess
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if evicted > 0 {
		s.observer.SessionsEvicted(evicted)
	}
	return created, nil
}

// Validate returns the active session of userID whose hash matches presented.
// A matching session past its expiry is moved to expired (and that change is kept)
// before Expired is returned.
func (s *Store) Validate(ctx context.Context, userID, presented string) (*domain.Session, error) {
	const op = "session.Validate"
	var (
		found   *domain.Session
		outcome error
	)
	err := s.repo.WithUserLock(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		sess, err := s.match(ctx, tx, op, userID, presented)
		if err != nil {
			if autherr.KindOf(err) == autherr.Expired {
				outcome = err
				return nil
			}
			return err
		}
		found = sess
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if outcome != nil {
		return nil, outcome
	}
	return found, nil
}

// Rotate validates OldSecret and, in the same transaction, replaces the session's hash with
// the hash of NewSecret. ID and FamilyID are preserved. Two concurrent rotations with the
// same OldSecret yield one success; the other sees the new hash and gets NotFound.
func (s *Store) Rotate(ctx context.Context, p RotateParams) (*domain.Session, error) {
	const op = "session.Rotate"
	if p.UserID == "" || p.OldSecret == "" || p.NewSecret == "" || p.TTL <= 0 {
		return nil, autherr.New(autherr.InvalidArgument, op, "user, secrets and ttl are required")
	}
	newHash, err := s.hasher.Hash(p.NewSecret)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}

	var (
		rotated *domain.Session
		outcome error
	)
	err = s.repo.WithUserLock(ctx, p.UserID, func(ctx context.Context, tx repository.Tx) error {
		sess, err := s.match(ctx, tx, op, p.UserID, p.OldSecret)
		if err != nil {
			if autherr.KindOf(err) == autherr.Expired {
				outcome = err
				return nil
			}
			return err
		}
		now := s.now()
		r := repository.Rotation{
			ID:               sess.ID,
			RefreshTokenHash: newHash,
			IP:               p.IP,
			UserAgent:        p.UserAgent,
			ExpiresAt:        now.Add(p.TTL),
			At:               now,
		}
		if err := tx.UpdateRotation(ctx, r); err != nil {
			return err
		}
		sess.RefreshTokenHash = newHash
		if p.IP != "" {
			sess.IP = p.IP
		}
		if p.UserAgent != "" {
			sess.UserAgent = p.UserAgent
		}
		sess.LastUsedAt = &now
		sess.ExpiresAt = r.ExpiresAt
		sess.UpdatedAt = now
		rotated = sess
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if outcome != nil {
		return nil, outcome
	}
	return rotated, nil
}

// match scans the user's active sessions (locked, newest update first) for one whose hash
// verifies against presented.
func (s *Store) match(ctx context.Context, tx repository.Tx, op, userID, presented string) (*domain.Session, error) {
	active, err := tx.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, sess := range active {
		if !s.hasher.Verify(presented, sess.RefreshTokenHash) {
			continue
		}
		if sess.State.Terminal() {
			return nil, autherr.New(autherr.Revoked, op, "session revoked")
		}
		if !now.Before(sess.ExpiresAt) {
			if err := tx.MarkEnded(ctx, []string{sess.ID}, domain.StateExpired, domain.ReasonExpired, now); err != nil {
				return nil, err
			}
			return nil, autherr.New(autherr.Expired, op, "session expired")
		}
		return sess, nil
	}
	return nil, autherr.New(autherr.NotFound, op, "no matching session")
}

// Get returns the session for id. NotFound when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	const op = "session.Get"
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	if sess == nil {
		return nil, autherr.New(autherr.NotFound, op, "session not found")
	}
	return sess, nil
}

// ListUserSessions returns every session of userID in any state, newest first.
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, "session.ListUserSessions", err)
	}
	return list, nil
}

// RevokeSession revokes one session. NotFound when id does not exist; revoking a session
// that already ended is a no-op.
func (s *Store) RevokeSession(ctx context.Context, id, reason string) error {
	const op = "session.RevokeSession"
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if reason == "" {
		reason = domain.ReasonRevoked
	}
	if _, err := s.repo.Revoke(ctx, id, reason, s.now()); err != nil {
		return autherr.Wrap(autherr.Internal, op, err)
	}
	return nil
}

// RevokeAllUserSessions revokes every active session of userID and returns how many changed.
func (s *Store) RevokeAllUserSessions(ctx context.Context, userID, reason string) (int64, error) {
	if reason == "" {
		reason = domain.ReasonRevoked
	}
	n, err := s.repo.RevokeAllByUser(ctx, userID, reason, s.now())
	if err != nil {
		return 0, autherr.Wrap(autherr.Internal, "session.RevokeAllUserSessions", err)
	}
	return n, nil
}

// RevokeFamily revokes every active session descending from one login.
func (s *Store) RevokeFamily(ctx context.Context, familyID, reason string) (int64, error) {
	if reason == "" {
		reason = domain.ReasonRevoked
	}
	n, err := s.repo.RevokeFamily(ctx, familyID, reason, s.now())
	if err != nil {
		return 0, autherr.Wrap(autherr.Internal, "session.RevokeFamily", err)
	}
	return n, nil
}

// RecentlyRotated reports whether any session of familyID was rotated within the last `within`.
func (s *Store) RecentlyRotated(ctx context.Context, familyID string, within time.Duration) (bool, error) {
	list, err := s.repo.ListByFamily(ctx, familyID)
	if err != nil {
		return false, autherr.Wrap(autherr.Internal, "session.RecentlyRotated", err)
	}
	cutoff := s.now().Add(-within)
	for _, sess := range list {
		if sess.LastUsedAt != nil && sess.LastUsedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpired moves active sessions past their expiry to expired. Safe to run
// concurrently with traffic and repeatedly.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, autherr.Wrap(autherr.Internal, "session.CleanupExpired", err)
	}
	if n > 0 {
		s.observer.SessionsSwept(n)
	}
	return n, nil
}

func classify(op string, err error) error {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}
	return autherr.Wrap(autherr.Internal, op, err)
}
