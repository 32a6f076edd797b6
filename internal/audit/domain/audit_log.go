package domain

import "time"

// AuditLog represents an audit event. UserID is empty when the actor is unknown
// (for example a failed login for a phone with no account).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
