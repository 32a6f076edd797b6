package domain

import (
	"errors"
	"time"
)

// Role names carried in access tokens.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is the core user entity. Users are created implicitly on the first successful
// OTP verification for a phone number.
type User struct {
	ID          string
	PhoneNumber string
	Name        string
	Email       string
	IsActive    bool
	Roles       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.PhoneNumber == "" {
		return errors.New("phone number is required")
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	return nil
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
