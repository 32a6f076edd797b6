package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"otp-auth/backend/internal/session/domain"
)

var errNotActive = errors.New("session rotate: session is not active")

// MemoryRepository keeps sessions in process memory, for dev mode and tests. WithUserLock
// holds one mutex for the whole closure and applies staged writes only when fn succeeds.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{repo: r, staged: make(map[string]*domain.Session)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, s := range tx.staged {
		r.byID[id] = s
	}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.list(func(s *domain.Session) bool { return s.UserID == userID }), nil
}

func (r *MemoryRepository) ListByFamily(ctx context.Context, familyID string) ([]*domain.Session, error) {
	return r.list(func(s *domain.Session) bool { return s.FamilyID == familyID }), nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (int64, error) {
	return r.end(func(s *domain.Session) bool { return s.ID == id }, domain.StateRevoked, reason, at), nil
}

func (r *MemoryRepository) RevokeAllByUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	return r.end(func(s *domain.Session) bool { return s.UserID == userID }, domain.StateRevoked, reason, at), nil
}

func (r *MemoryRepository) RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error) {
	return r.end(func(s *domain.Session) bool { return s.FamilyID == familyID }, domain.StateRevoked, reason, at), nil
}

func (r *MemoryRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	return r.end(func(s *domain.Session) bool { return !now.Before(s.ExpiresAt) }, domain.StateExpired, domain.ReasonExpired, now), nil
}

func (r *MemoryRepository) list(match func(*domain.Session) bool) []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) end(match func(*domain.Session) bool, state domain.State, reason string, at time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.State == domain.StateActive && match(s) {
			endSession(s, state, reason, at)
			n++
		}
	}
	return n
}

func endSession(s *domain.Session, state domain.State, reason string, at time.Time) {
	ended := at
	s.State = state
	s.EndReason = reason
	s.EndedAt = &ended
	s.UpdatedAt = at
}

type memTx struct {
	repo   *MemoryRepository
	staged map[string]*domain.Session
}

func (t *memTx) current(id string) *domain.Session {
	if s, ok := t.staged[id]; ok {
		return s
	}
	return t.repo.byID[id]
}

func (t *memTx) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	seen := make(map[string]bool)
	var out []*domain.Session
	add := func(s *domain.Session) {
		if seen[s.ID] {
			return
		}
		seen[s.ID] = true
		if s.UserID == userID && s.State == domain.StateActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	for _, s := range t.staged {
		add(s)
	}
	for _, s := range t.repo.byID {
		add(s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (t *memTx) Create(ctx context.Context, s *domain.Session) error {
	cp := *s
	t.staged[s.ID] = &cp
	return nil
}

func (t *memTx) UpdateRotation(ctx context.Context, r Rotation) error {
	cur := t.current(r.ID)
	if cur == nil || cur.State != domain.StateActive {
		return errNotActive
	}
	cp := *cur
	cp.RefreshTokenHash = r.RefreshTokenHash
	if r.IP != "" {
		cp.IP = r.IP
	}
	if r.UserAgent != "" {
		cp.UserAgent = r.UserAgent
	}
	at := r.At
	cp.LastUsedAt = &at
	cp.ExpiresAt = r.ExpiresAt
	cp.UpdatedAt = r.At
	t.staged[r.ID] = &cp
	return nil
}

func (t *memTx) MarkEnded(ctx context.Context, ids []string, state domain.State, reason string, at time.Time) error {
	for _, id := range ids {
		cur := t.current(id)
		if cur == nil || cur.State != domain.StateActive {
			continue
		}
		cp := *cur
		endSession(&cp, state, reason, at)
		t.staged[id] = &cp
	}
	return nil
}
