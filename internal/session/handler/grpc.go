package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sessionv1 "otp-auth/backend/api/sessionv1"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

// Server implements SessionService for the authenticated caller.
type Server struct {
	sessionv1.UnimplementedSessionServiceServer
	sessions *Sessions
}

// NewServer returns a new Session gRPC server. If sessions is nil, all RPCs return Unimplemented.
func NewServer(sessions *Sessions) *Server {
	return &Server{sessions: sessions}
}

// ListSessions returns the caller's sessions.
func (s *Server) ListSessions(ctx context.Context, req *sessionv1.ListSessionsRequest) (*sessionv1.ListSessionsResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
	}
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	list, err := s.sessions.List(ctx, id, req.ActiveOnly)
	if err != nil {
		return nil, errmap.GRPC(err)
	}
	return &sessionv1.ListSessionsResponse{Sessions: list}, nil
}

// RevokeSession revokes a session owned by the caller, or any session for ADMIN.
func (s *Server) RevokeSession(ctx context.Context, req *sessionv1.RevokeSessionRequest) (*sessionv1.RevokeSessionResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
	}
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	if err := s.sessions.Revoke(ctx, id, req.SessionID); err != nil {
		return nil, errmap.GRPC(err)
	}
	return &sessionv1.RevokeSessionResponse{Message: "Session revoked"}, nil
}
