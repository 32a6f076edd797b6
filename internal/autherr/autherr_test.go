package autherr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := New(Cooldown, "otp.Generate", "please wait before requesting again")
	if !errors.Is(err, ErrCooldown) {
		t.Fatal("errors.Is(err, ErrCooldown) = false, want true")
	}
	if errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("errors.Is(err, ErrQuotaExceeded) = true, want false")
	}
	wrapped := fmt.Errorf("request otp: %w", err)
	if !errors.Is(wrapped, ErrCooldown) {
		t.Fatal("wrapped error should still match ErrCooldown")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", New(Expired, "op", ""), Expired},
		{"wrapped classified", fmt.Errorf("x: %w", New(Revoked, "op", "")), Revoked},
		{"plain error", errors.New("boom"), Internal},
		{"nil", nil, Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_HidesInternalDetails(t *testing.T) {
	err := Wrap(Internal, "session.Create", errors.New("pq: connection refused"))
	if got := Message(err); got != "internal error" {
		t.Errorf("Message = %q, want generic", got)
	}
	if got := Message(New(InvalidCredential, "op", "invalid refresh token")); got != "invalid refresh token" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(New(NotFound, "op", "")); got != "not_found" {
		t.Errorf("Message = %q, want kind name", got)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(Internal, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}

func TestRetryable(t *testing.T) {
	err := Wrap(Internal, "session.Rotate", context.DeadlineExceeded)
	if !Retryable(err) {
		t.Fatal("deadline exceeded should be retryable")
	}
	if Retryable(New(Internal, "op", "")) {
		t.Fatal("plain internal error should not be retryable")
	}
}

func TestError_ErrorString(t *testing.T) {
	err := &Error{Kind: NotFound, Op: "otp.Verify", Msg: "otp not found"}
	if got := err.Error(); got != "otp.Verify: otp not found" {
		t.Errorf("Error() = %q", got)
	}
	err = &Error{Kind: Internal, Op: "db", Err: errors.New("closed")}
	if got := err.Error(); got != "db: internal: closed" {
		t.Errorf("Error() = %q", got)
	}
}
