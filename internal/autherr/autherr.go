// Package autherr classifies failures of the OTP, session, and auth flows.
//
// Components raise the specific Kind; transports map kinds to status codes and
// decide which kinds may reach the client verbatim.
package autherr

import (
	"context"
	"errors"
)

// Kind is the failure class of an error.
type Kind uint8

const (
	// Internal is an unexpected persistence, hashing, or signing failure.
	Internal Kind = iota
	// Cooldown means an OTP was requested again before the resend cooldown elapsed.
	Cooldown
	// QuotaExceeded means too many OTPs were requested inside the quota window.
	QuotaExceeded
	// NotFound means no matching OTP challenge or session exists.
	NotFound
	// Expired means the matching challenge or session is past its expiry.
	Expired
	// InvalidCredential means a wrong code or token secret.
	InvalidCredential
	// Revoked means the matching session is no longer usable.
	Revoked
	// Conflict means a duplicate resource.
	Conflict
	// InvalidArgument means malformed caller input (e.g. a phone number that is not E.164-like).
	InvalidArgument
)

var kindNames = [...]string{
	Internal:          "internal",
	Cooldown:          "cooldown",
	QuotaExceeded:     "quota_exceeded",
	NotFound:          "not_found",
	Expired:           "expired",
	InvalidCredential: "invalid_credential",
	Revoked:           "revoked",
	Conflict:          "conflict",
	InvalidArgument:   "invalid_argument",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInternal          = &Error{Kind: Internal}
	ErrCooldown          = &Error{Kind: Cooldown}
	ErrQuotaExceeded     = &Error{Kind: QuotaExceeded}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrExpired           = &Error{Kind: Expired}
	ErrInvalidCredential = &Error{Kind: InvalidCredential}
	ErrRevoked           = &Error{Kind: Revoked}
	ErrConflict          = &Error{Kind: Conflict}
	ErrInvalidArgument   = &Error{Kind: InvalidArgument}
)

// Error is a classified error. Op names the operation that failed (e.g. "otp.Generate"),
// Msg is safe to show to clients, and Err is the underlying cause (never shown).
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels: a target with only Kind set matches any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Msg != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// New returns an *Error with the given kind, operation, and client-safe message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err under kind. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the client-safe message of err. Internal errors always yield a generic message.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "internal error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

// Retryable reports whether err came from caller cancellation or a deadline.
func Retryable(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
