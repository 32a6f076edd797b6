// Package cleanup periodically removes expired sessions, old OTP challenges and stale
// rate-limit buckets.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionSweeper marks sessions past their expiry as expired.
type SessionSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// ChallengeSweeper deletes OTP challenges created before cutoff.
type ChallengeSweeper interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BucketPurger deletes rate-limit buckets whose window started before cutoff.
type BucketPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	Window() time.Duration
}

// Sweeper runs one cleanup pass over whichever stores are set.
type Sweeper struct {
	Sessions   SessionSweeper
	Challenges ChallengeSweeper
	Buckets    BucketPurger
	// Retention is how long OTP challenges are kept after creation.
	Retention time.Duration

	now func() time.Time
}

// Result counts what one pass removed.
type Result struct {
	SessionsExpired   int64
	ChallengesDeleted int64
	BucketsPurged     int64
}

// Sweep runs every configured step and returns the first error after attempting all of them.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := time.Now().UTC()
	if s.now != nil {
		now = s.now()
	}
	var (
		res      Result
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Sessions != nil {
		n, err := s.Sessions.CleanupExpired(ctx)
		res.SessionsExpired = n
		keep(err)
	}
	if s.Challenges != nil && s.Retention > 0 {
		n, err := s.Challenges.DeleteCreatedBefore(ctx, now.Add(-s.Retention))
		res.ChallengesDeleted = n
		keep(err)
	}
	if s.Buckets != nil {
		n, err := s.Buckets.Purge(ctx, now.Add(-2*s.Buckets.Window()))
		res.BucketsPurged = n
		keep(err)
	}
	return res, firstErr
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("cleanup: sweep failed")
		}
		return
	}
	log.Debug().
		Int64("sessions_expired", res.SessionsExpired).
		Int64("challenges_deleted", res.ChallengesDeleted).
		Int64("buckets_purged", res.BucketsPurged).
		Msg("cleanup: sweep done")
}
