package repository

import (
	"context"
	"sync"
	"time"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/user/domain"
)

// MemoryRepository keeps users in process memory, for dev mode and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byPhone map[string]string
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.User), byPhone: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[r.byPhone[phone]]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return autherr.Wrap(autherr.InvalidArgument, "user.Create", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPhone[u.PhoneNumber]; ok {
		return autherr.New(autherr.Conflict, "user.Create", "phone number already registered")
	}
	if _, ok := r.byID[u.ID]; ok {
		return autherr.New(autherr.Conflict, "user.Create", "user id already exists")
	}
	r.byID[u.ID] = clone(u)
	r.byPhone[u.PhoneNumber] = u.ID
	return nil
}

func (r *MemoryRepository) SetRoles(ctx context.Context, id string, roles []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return autherr.New(autherr.NotFound, "user.SetRoles", "user not found")
	}
	u.Roles = append([]string(nil), roles...)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}
