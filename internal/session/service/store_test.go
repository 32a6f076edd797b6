package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/security"
	"otp-auth/backend/internal/session/domain"
	"otp-auth/backend/internal/session/repository"
)

const userID = "user-1"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	mu      sync.Mutex
	evicted int
	swept   int64
}

func (o *countingObserver) SessionsEvicted(n int) { o.mu.Lock(); o.evicted += n; o.mu.Unlock() }
func (o *countingObserver) SessionsSwept(n int64) { o.mu.Lock(); o.swept += n; o.mu.Unlock() }

func newTestStore(t *testing.T) (*Store, *clock, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	s := NewStore(repository.NewMemoryRepository(), security.NewTestHasher(), Config{Observer: obs})
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c, obs
}

func mustCreate(t *testing.T, s *Store, secret string) *domain.Session {
	t.Helper()
	sess, err := s.Create(context.Background(), CreateParams{UserID: userID, RawSecret: secret, TTL: time.Hour, IP: "1.1.1.1", UserAgent: "ua/1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestCreate_AssignsFamilyAndHashesSecret(t *testing.T) {
	s, _, _ := newTestStore(t)
	sess := mustCreate(t, s, "secret-1")

	if sess.ID == "" || len(sess.FamilyID) != 26 {
		t.Fatalf("session id=%q family=%q", sess.ID, sess.FamilyID)
	}
	if sess.RefreshTokenHash == "secret-1" || sess.RefreshTokenHash == "" {
		t.Fatal("secret must be stored hashed")
	}
	if sess.State != domain.StateActive {
		t.Errorf("state = %s, want active", sess.State)
	}

	withFamily, err := s.Create(context.Background(), CreateParams{UserID: userID, RawSecret: "secret-2", TTL: time.Hour, FamilyID: "fam-x"})
	if err != nil {
		t.Fatal(err)
	}
	if withFamily.FamilyID != "fam-x" {
		t.Errorf("FamilyID = %q, want fam-x", withFamily.FamilyID)
	}
}

func TestCreate_InvalidParams(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Create(context.Background(), CreateParams{UserID: userID, TTL: time.Hour})
	if !errors.Is(err, autherr.ErrInvalidArgument) {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestCreate_EvictsOldestBeyondCap(t *testing.T) {
	s, c, obs := newTestStore(t)
	ctx := context.Background()

	var created []*domain.Session
	for i := 0; i < 6; i++ {
		created = append(created, mustCreate(t, s, fmt.Sprintf("secret-%d", i)))
		c.advance(time.Second)
	}

	list, _ := s.ListUserSessions(ctx, userID)
	active := 0
	for _, sess := range list {
		if sess.State == domain.StateActive {
			active++
		}
	}
	if active != 5 {
		t.Errorf("active sessions = %d, want 5", active)
	}
	oldest, _ := s.Get(ctx, created[0].ID)
	if oldest.State != domain.StateRevoked || oldest.EndReason != domain.ReasonEvicted {
		t.Errorf("oldest session state=%s reason=%q, want revoked/evicted", oldest.State, oldest.EndReason)
	}
	if _, err := s.Validate(ctx, userID, "secret-0"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("evicted secret validate = %v, want NotFound", err)
	}
	if obs.evicted != 1 {
		t.Errorf("evicted observed = %d, want 1", obs.evicted)
	}
}

func TestCreate_ExpiredSessionsDoNotCountTowardCap(t *testing.T) {
	s, c, obs := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreate(t, s, fmt.Sprintf("old-%d", i))
	}
	c.advance(2 * time.Hour)
	fresh := mustCreate(t, s, "fresh")

	if obs.evicted != 0 {
		t.Errorf("evicted = %d, want 0", obs.evicted)
	}
	list, _ := s.ListUserSessions(ctx, userID)
	for _, sess := range list {
		if sess.ID == fresh.ID {
			continue
		}
		if sess.State != domain.StateExpired {
			t.Errorf("stale session %s state = %s, want expired", sess.ID, sess.State)
		}
	}
}

func TestValidate(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	sess := mustCreate(t, s, "secret-1")
	mustCreate(t, s, "secret-2")

	got, err := s.Validate(ctx, userID, "secret-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("matched %s, want %s", got.ID, sess.ID)
	}
	if _, err := s.Validate(ctx, userID, "nope"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("wrong secret = %v, want NotFound", err)
	}
	if _, err := s.Validate(ctx, "other-user", "secret-1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("other user = %v, want NotFound", err)
	}
}

func TestValidate_ExpiredMatchIsPersisted(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()
	sess := mustCreate(t, s, "secret-1")
	c.advance(time.Hour)

	if _, err := s.Validate(ctx, userID, "secret-1"); !errors.Is(err, autherr.ErrExpired) {
		t.Fatalf("Validate expired = %v, want Expired", err)
	}
	got, _ := s.Get(ctx, sess.ID)
	if got.State != domain.StateExpired {
		t.Errorf("state = %s, want expired", got.State)
	}
	// terminal: the same secret now finds no active session
	if _, err := s.Validate(ctx, userID, "secret-1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("second Validate = %v, want NotFound", err)
	}
}

func TestRotate_InPlace(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()
	orig := mustCreate(t, s, "secret-1")
	c.advance(10 * time.Minute)

	rotated, err := s.Rotate(ctx, RotateParams{UserID: userID, OldSecret: "secret-1", NewSecret: "secret-2", TTL: 2 * time.Hour, UserAgent: "ua/2"})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.ID != orig.ID || rotated.FamilyID != orig.FamilyID {
		t.Errorf("rotation must keep id and family")
	}
	if rotated.IP != "1.1.1.1" || rotated.UserAgent != "ua/2" {
		t.Errorf("ip=%q ua=%q, want kept ip and new ua", rotated.IP, rotated.UserAgent)
	}
	if want := c.now().Add(2 * time.Hour); !rotated.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", rotated.ExpiresAt, want)
	}
	if rotated.LastUsedAt == nil || !rotated.LastUsedAt.Equal(c.now()) {
		t.Errorf("LastUsedAt = %v", rotated.LastUsedAt)
	}

	stored, _ := s.Get(ctx, orig.ID)
	if stored.RefreshTokenHash != rotated.RefreshTokenHash || stored.UserAgent != "ua/2" {
		t.Error("rotation was not persisted")
	}
	if _, err := s.Validate(ctx, userID, "secret-1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("old secret after rotation = %v, want NotFound", err)
	}
	if _, err := s.Validate(ctx, userID, "secret-2"); err != nil {
		t.Errorf("new secret: %v", err)
	}
	list, _ := s.ListUserSessions(ctx, userID)
	if len(list) != 1 {
		t.Errorf("sessions = %d, rotation must not insert rows", len(list))
	}
}

func TestRotate_ConcurrentSameSecretSucceedsOnce(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, "secret-1")

	const n = 6
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Rotate(ctx, RotateParams{UserID: userID, OldSecret: "secret-1", NewSecret: fmt.Sprintf("next-%d", i), TTL: time.Hour})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok, notFound := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, autherr.ErrNotFound):
			notFound++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || notFound != n-1 {
		t.Errorf("ok=%d notFound=%d", ok, notFound)
	}
}

func TestRotate_Expired(t *testing.T) {
	s, c, _ := newTestStore(t)
	mustCreate(t, s, "secret-1")
	c.advance(time.Hour + time.Second)
	_, err := s.Rotate(context.Background(), RotateParams{UserID: userID, OldSecret: "secret-1", NewSecret: "secret-2", TTL: time.Hour})
	if !errors.Is(err, autherr.ErrExpired) {
		t.Errorf("Rotate expired = %v, want Expired", err)
	}
}

func TestRevokeSession(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	sess := mustCreate(t, s, "secret-1")

	if err := s.RevokeSession(ctx, sess.ID, domain.ReasonLogout); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if err := s.RevokeSession(ctx, sess.ID, ""); err != nil {
		t.Fatalf("second RevokeSession should be a no-op: %v", err)
	}
	got, _ := s.Get(ctx, sess.ID)
	if got.State != domain.StateRevoked || got.EndReason != domain.ReasonLogout || got.EndedAt == nil {
		t.Errorf("revoked session = %+v", got)
	}
	if err := s.RevokeSession(ctx, "missing", ""); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("missing id = %v, want NotFound", err)
	}
	if _, err := s.Validate(ctx, userID, "secret-1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("revoked secret = %v, want NotFound", err)
	}
}

func TestRevokeAllAndFamily(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "a")
	mustCreate(t, s, "b")
	other, _ := s.Create(ctx, CreateParams{UserID: "user-2", RawSecret: "c", TTL: time.Hour, FamilyID: a.FamilyID})

	n, err := s.RevokeFamily(ctx, a.FamilyID, domain.ReasonReuseDetected)
	if err != nil || n != 2 {
		t.Fatalf("RevokeFamily = %d, %v; want 2", n, err)
	}
	if got, _ := s.Get(ctx, other.ID); got.State != domain.StateRevoked {
		t.Error("family revocation should reach every member")
	}

	n, err = s.RevokeAllUserSessions(ctx, userID, domain.ReasonLogout)
	if err != nil || n != 1 {
		t.Fatalf("RevokeAllUserSessions = %d, %v; want 1", n, err)
	}
	for _, secret := range []string{"a", "b"} {
		if _, err := s.Validate(ctx, userID, secret); !errors.Is(err, autherr.ErrNotFound) {
			t.Errorf("Validate(%q) after RevokeAllUserSessions = %v, want NotFound", secret, err)
		}
	}
	n, _ = s.RevokeAllUserSessions(ctx, userID, domain.ReasonLogout)
	if n != 0 {
		t.Errorf("second RevokeAllUserSessions = %d, want 0", n)
	}
}

func TestRecentlyRotated(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()
	sess := mustCreate(t, s, "secret-1")

	if ok, _ := s.RecentlyRotated(ctx, sess.FamilyID, 10*time.Second); ok {
		t.Error("never-rotated family should not count as recently rotated")
	}
	if _, err := s.Rotate(ctx, RotateParams{UserID: userID, OldSecret: "secret-1", NewSecret: "secret-2", TTL: time.Hour}); err != nil {
		t.Fatal(err)
	}
	c.advance(5 * time.Second)
	if ok, _ := s.RecentlyRotated(ctx, sess.FamilyID, 10*time.Second); !ok {
		t.Error("family rotated 5s ago should be recent")
	}
	c.advance(10 * time.Second)
	if ok, _ := s.RecentlyRotated(ctx, sess.FamilyID, 10*time.Second); ok {
		t.Error("family rotated 15s ago should not be recent")
	}
}

func TestCleanupExpired(t *testing.T) {
	s, c, obs := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, "a")
	revoked := mustCreate(t, s, "b")
	_ = s.RevokeSession(ctx, revoked.ID, "")
	c.advance(time.Hour)

	n, err := s.CleanupExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CleanupExpired = %d, %v; want 1", n, err)
	}
	if got, _ := s.Get(ctx, revoked.ID); got.State != domain.StateRevoked {
		t.Error("cleanup must not change terminal sessions")
	}
	if n, _ := s.CleanupExpired(ctx); n != 0 {
		t.Errorf("repeated cleanup = %d, want 0", n)
	}
	if obs.swept != 1 {
		t.Errorf("swept observed = %d, want 1", obs.swept)
	}
}

func TestCancelledContextIsRetryable(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Create(ctx, CreateParams{UserID: userID, RawSecret: "x", TTL: time.Hour})
	if !autherr.Retryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
}
