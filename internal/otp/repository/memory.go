package repository

import (
	"context"
	"sync"
	"time"

	"otp-auth/backend/internal/otp/domain"
)

// MemoryRepository keeps challenges in process memory, for dev mode and tests. A single
// mutex is held for the whole WithPhoneLock closure; writes made by a failing closure are
// discarded.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]*domain.Challenge
	phones map[string][]string // phone -> ids in insertion order
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*domain.Challenge),
		phones: make(map[string][]string),
	}
}

func (r *MemoryRepository) WithPhoneLock(ctx context.Context, phone string, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{repo: r, staged: make(map[string]*domain.Challenge)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range tx.order {
		c := tx.staged[id]
		if _, exists := r.byID[id]; !exists {
			r.phones[c.PhoneNumber] = append(r.phones[c.PhoneNumber], id)
		}
		r.byID[id] = c
	}
	return nil
}

func (r *MemoryRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for phone, ids := range r.phones {
		kept := ids[:0]
		for _, id := range ids {
			if r.byID[id].CreatedAt.Before(cutoff) {
				delete(r.byID, id)
				n++
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(r.phones, phone)
		} else {
			r.phones[phone] = kept
		}
	}
	return n, nil
}

// memTx reads committed rows overlaid with its own staged writes.
type memTx struct {
	repo   *MemoryRepository
	staged map[string]*domain.Challenge
	order  []string
}

func (t *memTx) get(id string) *domain.Challenge {
	if c, ok := t.staged[id]; ok {
		return c
	}
	return t.repo.byID[id]
}

func (t *memTx) all(phone string) []*domain.Challenge {
	var out []*domain.Challenge
	for _, id := range t.repo.phones[phone] {
		out = append(out, t.get(id))
	}
	for _, id := range t.order {
		c := t.staged[id]
		if _, committed := t.repo.byID[id]; !committed && c.PhoneNumber == phone {
			out = append(out, c)
		}
	}
	return out
}

func (t *memTx) stage(c *domain.Challenge) {
	if _, ok := t.staged[c.ID]; !ok {
		t.order = append(t.order, c.ID)
	}
	t.staged[c.ID] = c
}

func (t *memTx) newest(phone string, unusedOnly bool) *domain.Challenge {
	var best *domain.Challenge
	for _, c := range t.all(phone) {
		if unusedOnly && c.Used {
			continue
		}
		if best == nil || !c.CreatedAt.Before(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (t *memTx) Latest(ctx context.Context, phone string) (*domain.Challenge, error) {
	return t.newest(phone, false), nil
}

func (t *memTx) LatestUnused(ctx context.Context, phone string) (*domain.Challenge, error) {
	return t.newest(phone, true), nil
}

func (t *memTx) CountCreatedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	n := 0
	for _, c := range t.all(phone) {
		if !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Create(ctx context.Context, c *domain.Challenge) error {
	cp := *c
	t.stage(&cp)
	return nil
}

func (t *memTx) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	c := t.get(id)
	if c == nil || c.Used {
		return false, nil
	}
	cp := *c
	cp.Used = true
	usedAt := at
	cp.UsedAt = &usedAt
	t.stage(&cp)
	return true, nil
}
