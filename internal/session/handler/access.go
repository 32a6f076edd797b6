// Package handler exposes the caller's sessions over gRPC and HTTP.
package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	sessionv1 "otp-auth/backend/api/sessionv1"
	"otp-auth/backend/internal/audit"
	"otp-auth/backend/internal/autherr"
	"otp-auth/backend/internal/policy/engine"
	"otp-auth/backend/internal/server/interceptors"
	"otp-auth/backend/internal/session/domain"
)

// SessionStore is the part of the session store the handlers use.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error)
	RevokeSession(ctx context.Context, id, reason string) error
}

// Authorizer decides whether the caller may perform an action.
type Authorizer interface {
	Allow(ctx context.Context, in engine.Input) (bool, error)
}

// Sessions lists and revokes sessions on behalf of an authenticated caller. Both
// transports delegate to it.
type Sessions struct {
	store SessionStore
	authz Authorizer
	audit audit.AuditLogger
	now   func() time.Time
}

// NewSessions returns a Sessions. authz and auditLogger may be nil; without an authorizer
// callers may only act on their own sessions.
func NewSessions(store SessionStore, authz Authorizer, auditLogger audit.AuditLogger) *Sessions {
	return &Sessions{store: store, authz: authz, audit: auditLogger, now: time.Now}
}

func (s *Sessions) allow(ctx context.Context, id interceptors.Identity, action, ownerID string) (bool, error) {
	if s.authz == nil {
		return ownerID == "" || ownerID == id.UserID, nil
	}
	return s.authz.Allow(ctx, engine.Input{
		Subject:  engine.Subject{ID: id.UserID, Roles: id.Roles},
		Action:   action,
		Resource: engine.Resource{OwnerID: ownerID},
	})
}

// List returns the caller's sessions, newest first. The session the caller's access token
// belongs to is flagged Current.
func (s *Sessions) List(ctx context.Context, id interceptors.Identity, activeOnly bool) ([]*sessionv1.Session, error) {
	const op = "sessions.List"
	ok, err := s.allow(ctx, id, engine.ActionListSessions, id.UserID)
	if err != nil {
		return nil, autherr.Wrap(autherr.Internal, op, err)
	}
	if !ok {
		return nil, autherr.New(autherr.InvalidCredential, op, "not allowed")
	}
	list, err := s.store.ListUserSessions(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*sessionv1.Session, 0, len(list))
	for _, sess := range list {
		if activeOnly && !sess.Usable(now) {
			continue
		}
		out = append(out, toProto(sess, id.SessionID))
	}
	return out, nil
}

// Revoke ends one session. A session the caller may not revoke is reported as NotFound, so
// other users' session ids cannot be probed.
func (s *Sessions) Revoke(ctx context.Context, id interceptors.Identity, sessionID string) error {
	const op = "sessions.Revoke"
	if sessionID == "" {
		return autherr.New(autherr.InvalidArgument, op, "session id is required")
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	ok, err := s.allow(ctx, id, engine.ActionRevokeSession, sess.UserID)
	if err != nil {
		return autherr.Wrap(autherr.Internal, op, err)
	}
	if !ok {
		log.Warn().Str("user_id", id.UserID).Str("session_id", sessionID).Msg("sessions: revoke denied")
		return autherr.New(autherr.NotFound, op, "session not found")
	}
	if err := s.store.RevokeSession(ctx, sessionID, domain.ReasonRevoked); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, id.UserID, audit.ActionSessionRevoked, audit.ResourceSession, map[string]string{
			"session_id": sessionID,
			"owner_id":   sess.UserID,
		})
	}
	return nil
}

func toProto(s *domain.Session, currentID string) *sessionv1.Session {
	return &sessionv1.Session{
		ID:         s.ID,
		UserID:     s.UserID,
		FamilyID:   s.FamilyID,
		IP:         s.IP,
		UserAgent:  s.UserAgent,
		State:      string(s.State),
		Current:    s.ID == currentID,
		LastUsedAt: s.LastUsedAt,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
	}
}
