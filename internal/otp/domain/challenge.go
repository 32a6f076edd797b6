package domain

import "time"

// Challenge is one issued OTP (stored in the otp_challenges table). Only the hash of the
// code is kept. Rows are never deleted by the engine; used rows stay for cooldown and
// quota accounting until the retention purge.
type Challenge struct {
	ID          string
	PhoneNumber string
	CodeHash    string
	ExpiresAt   time.Time
	Used        bool
	UsedAt      *time.Time
	IP          string
	CreatedAt   time.Time
}

// Expired reports whether the challenge can no longer be verified at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
