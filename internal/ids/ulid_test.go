package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewULID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if len(a) != 26 {
		t.Fatalf("len = %d, want 26", len(a))
	}
	parsed, err := ulid.ParseStrict(a)
	if err != nil {
		t.Fatalf("ParseStrict: %v", err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got, now)
	}

	b, _ := NewULID(now)
	if a == b {
		t.Error("two ULIDs at the same instant should differ")
	}
}

func TestNewULID_ZeroTime(t *testing.T) {
	id, err := NewULID(time.Time{})
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	parsed := ulid.MustParse(id)
	if time.Since(ulid.Time(parsed.Time())) > time.Minute {
		t.Error("zero time should default to now")
	}
}
