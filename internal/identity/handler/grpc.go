package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "otp-auth/backend/api/authv1"
	"otp-auth/backend/internal/identity/service"
	"otp-auth/backend/internal/server/errmap"
	"otp-auth/backend/internal/server/interceptors"
)

// AuthServer implements AuthService for OTP login, token refresh and logout.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth  *service.AuthService
	authz Authorizer
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, all RPCs return Unimplemented.
// authz may be nil.
func NewAuthServer(auth *service.AuthService, authz Authorizer) *AuthServer {
	return &AuthServer{auth: auth, authz: authz}
}

// RequestOtp issues and delivers a one-time code.
func (s *AuthServer) RequestOtp(ctx context.Context, req *authv1.RequestOtpRequest) (*authv1.RequestOtpResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestOtp not implemented")
	}
	ack, err := s.auth.RequestOTP(ctx, req.Phone, clientFrom(ctx))
	if err != nil {
		return nil, errmap.GRPC(err)
	}
	return &authv1.RequestOtpResponse{Message: ack.Message}, nil
}

// VerifyOtp exchanges a code for a token pair.
func (s *AuthServer) VerifyOtp(ctx context.Context, req *authv1.VerifyOtpRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyOtp not implemented")
	}
	if req.Otp == "" {
		return nil, status.Error(codes.InvalidArgument, "otp is required")
	}
	res, err := s.auth.VerifyOTP(ctx, req.Phone, req.Otp, clientFrom(ctx))
	if err != nil {
		return nil, errmap.GRPC(err)
	}
	return toAuthResponse(res), nil
}

// Refresh rotates a refresh token.
func (s *AuthServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token is required")
	}
	res, err := s.auth.RefreshTokens(ctx, req.RefreshToken, clientFrom(ctx))
	if err != nil {
		return nil, errmap.GRPC(err)
	}
	return toAuthResponse(res), nil
}

// Logout revokes every session of the authenticated caller.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok || id.UserID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	allowed, err := authorizeLogout(ctx, s.authz, id)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !allowed {
		return nil, status.Error(codes.PermissionDenied, "not allowed")
	}
	ack, err := s.auth.Logout(ctx, id.UserID)
	if err != nil {
		return nil, errmap.GRPC(err)
	}
	return &authv1.LogoutResponse{Message: ack.Message}, nil
}
