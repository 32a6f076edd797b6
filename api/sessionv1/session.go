// Package sessionv1 is the SessionService contract: listing and revoking the caller's
// refresh sessions.
package sessionv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"otp-auth/backend/api/jsoncodec"
)

const ServiceName = "otpauth.session.v1.SessionService"

const (
	SessionService_ListSessions_FullMethodName  = "/" + ServiceName + "/ListSessions"
	SessionService_RevokeSession_FullMethodName = "/" + ServiceName + "/RevokeSession"
)

type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	FamilyID   string     `json:"familyId"`
	IP         string     `json:"ip,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
	State      string     `json:"state"`
	Current    bool       `json:"current"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type ListSessionsRequest struct {
	// ActiveOnly drops expired and revoked sessions.
	ActiveOnly bool `json:"activeOnly"`
}

type ListSessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type RevokeSessionResponse struct {
	Message string `json:"message"`
}

// SessionServiceServer is implemented by the session handler.
type SessionServiceServer interface {
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error)
}

// UnimplementedSessionServiceServer answers every method with codes.Unimplemented.
type UnimplementedSessionServiceServer struct{}

func (UnimplementedSessionServiceServer) ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
}
func (UnimplementedSessionServiceServer) RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
}

var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: jsoncodec.Unary(SessionService_ListSessions_FullMethodName, SessionServiceServer.ListSessions)},
		{MethodName: "RevokeSession", Handler: jsoncodec.Unary(SessionService_RevokeSession_FullMethodName, SessionServiceServer.RevokeSession)},
	},
	Metadata: "api/sessionv1/session.go",
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

// SessionServiceClient calls SessionService over the JSON codec.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return jsoncodec.Invoke[ListSessionsResponse](ctx, c.cc, SessionService_ListSessions_FullMethodName, in, opts...)
}

func (c *SessionServiceClient) RevokeSession(ctx context.Context, in *RevokeSessionRequest, opts ...grpc.CallOption) (*RevokeSessionResponse, error) {
	return jsoncodec.Invoke[RevokeSessionResponse](ctx, c.cc, SessionService_RevokeSession_FullMethodName, in, opts...)
}
