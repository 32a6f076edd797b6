package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	n   int64
	err error
}

func (f *fakeSessions) CleanupExpired(context.Context) (int64, error) { return f.n, f.err }

type fakeChallenges struct{ cutoff time.Time }

func (f *fakeChallenges) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

type fakeBuckets struct{ cutoff time.Time }

func (f *fakeBuckets) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 7, nil
}

func (f *fakeBuckets) Window() time.Duration { return time.Minute }

func TestSweep_AllSteps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ch, bk := &fakeChallenges{}, &fakeBuckets{}
	s := &Sweeper{
		Sessions:   &fakeSessions{n: 2},
		Challenges: ch,
		Buckets:    bk,
		Retention:  24 * time.Hour,
		now:        func() time.Time { return now },
	}

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{SessionsExpired: 2, ChallengesDeleted: 3, BucketsPurged: 7}, res)
	require.Equal(t, now.Add(-24*time.Hour), ch.cutoff)
	require.Equal(t, now.Add(-2*time.Minute), bk.cutoff)
}

func TestSweep_ContinuesAfterError(t *testing.T) {
	boom := errors.New("db down")
	ch := &fakeChallenges{}
	s := &Sweeper{Sessions: &fakeSessions{err: boom}, Challenges: ch, Retention: time.Hour}

	res, err := s.Sweep(context.Background())
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 3, res.ChallengesDeleted)
	require.False(t, ch.cutoff.IsZero())
}

func TestSweep_ZeroRetentionKeepsChallenges(t *testing.T) {
	ch := &fakeChallenges{}
	_, err := (&Sweeper{Challenges: ch}).Sweep(context.Background())
	require.NoError(t, err)
	require.True(t, ch.cutoff.IsZero())
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Sweeper{Sessions: &fakeSessions{}}).Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
