package domain

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a session. Expired and Revoked are terminal.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// ParseState converts a stored state string.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateActive, StateExpired, StateRevoked:
		return State(s), nil
	}
	return "", fmt.Errorf("session: unknown state %q", s)
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool { return s != StateActive }

// Reasons recorded in end_reason when a session leaves the active state.
const (
	ReasonExpired       = "expired"
	ReasonEvicted       = "evicted"
	ReasonLogout        = "logout"
	ReasonRevoked       = "revoked"
	ReasonReuseDetected = "reuse_detected"
	ReasonUserInactive  = "user_inactive"
)

// Session is one refresh-token family member. It is rotated in place: ID and FamilyID
// stay fixed while RefreshTokenHash changes on every refresh.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	FamilyID         string
	IP               string
	UserAgent        string
	State            State
	EndReason        string
	LastUsedAt       *time.Time
	ExpiresAt        time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Usable reports whether the session is active and not past its expiry at now.
func (s *Session) Usable(now time.Time) bool {
	return s.State == StateActive && now.Before(s.ExpiresAt)
}
