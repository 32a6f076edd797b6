// Package ratelimit implements a fixed-window request counter shared by every replica
// through Postgres, with an in-memory variant for dev mode and tests.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Remaining is how many more hits the current window accepts.
	Remaining int
	// RetryAfter is the time until the window resets; zero when allowed.
	RetryAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// windowStart truncates now to the start of its window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func decide(hits, limit int, now, start time.Time, window time.Duration) Decision {
	if hits <= limit {
		return Decision{Allowed: true, Remaining: limit - hits}
	}
	return Decision{RetryAfter: start.Add(window).Sub(now)}
}

// PostgresLimiter stores counters in rate_limit_buckets.
type PostgresLimiter struct {
	db     *sql.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewPostgresLimiter allows limit hits per key per window.
func NewPostgresLimiter(conn *sql.DB, limit int, window time.Duration) *PostgresLimiter {
	return &PostgresLimiter{db: conn, limit: limit, window: window, now: func() time.Time { return time.Now().UTC() }}
}

// Allow records one hit for key and reports whether it is within the limit.
func (l *PostgresLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := windowStart(now, l.window)
	var hits int
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO rate_limit_buckets (bucket_key, window_start, hits) VALUES ($1, $2, 1)
		 ON CONFLICT (bucket_key, window_start) DO UPDATE SET hits = rate_limit_buckets.hits + 1
		 RETURNING hits`, key, start).Scan(&hits)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit: %w", err)
	}
	return decide(hits, l.limit, now, start, l.window), nil
}

// Purge deletes windows that started before cutoff.
func (l *PostgresLimiter) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM rate_limit_buckets WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("rate limit purge: %w", err)
	}
	return res.RowsAffected()
}

// Window returns the configured window length.
func (l *PostgresLimiter) Window() time.Duration { return l.window }

// MemoryLimiter is a process-local Limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	hits  int
}

// NewMemoryLimiter allows limit hits per key per window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, buckets: make(map[string]bucket), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	now := l.now()
	start := windowStart(now, l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if !b.start.Equal(start) {
		b = bucket{start: start}
	}
	b.hits++
	l.buckets[key] = b
	if len(l.buckets) > 10000 {
		l.sweep(start)
	}
	return decide(b.hits, l.limit, now, start, l.window), nil
}

// sweep drops buckets from earlier windows. Caller holds mu.
func (l *MemoryLimiter) sweep(current time.Time) {
	for k, b := range l.buckets {
		if b.start.Before(current) {
			delete(l.buckets, k)
		}
	}
}
