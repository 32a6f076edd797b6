// Package authv1 is the AuthService contract: phone OTP login, token refresh and logout.
package authv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"otp-auth/backend/api/jsoncodec"
)

const ServiceName = "otpauth.auth.v1.AuthService"

const (
	AuthService_RequestOtp_FullMethodName = "/" + ServiceName + "/RequestOtp"
	AuthService_VerifyOtp_FullMethodName  = "/" + ServiceName + "/VerifyOtp"
	AuthService_Refresh_FullMethodName    = "/" + ServiceName + "/Refresh"
	AuthService_Logout_FullMethodName     = "/" + ServiceName + "/Logout"
)

type RequestOtpRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type RequestOtpResponse struct {
	Message string `json:"message"`
}

type VerifyOtpRequest struct {
	Phone string `json:"phone" binding:"required"`
	Otp   string `json:"otp" binding:"required"`
}

type User struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phoneNumber"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Roles       []string  `json:"roles"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AuthResponse carries an issued token pair. ExpiresIn is the configured access token
// lifetime, e.g. "15m".
type AuthResponse struct {
	User             *User     `json:"user,omitempty"`
	TokenType        string    `json:"tokenType"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresIn        string    `json:"expiresIn"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct{}

type LogoutResponse struct {
	Message string `json:"message"`
}

// AuthServiceServer is implemented by the identity handler.
type AuthServiceServer interface {
	RequestOtp(context.Context, *RequestOtpRequest) (*RequestOtpResponse, error)
	VerifyOtp(context.Context, *VerifyOtpRequest) (*AuthResponse, error)
	Refresh(context.Context, *RefreshRequest) (*AuthResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
}

// UnimplementedAuthServiceServer answers every method with codes.Unimplemented.
type UnimplementedAuthServiceServer struct{}

func (UnimplementedAuthServiceServer) RequestOtp(context.Context, *RequestOtpRequest) (*RequestOtpResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestOtp not implemented")
}
func (UnimplementedAuthServiceServer) VerifyOtp(context.Context, *VerifyOtpRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyOtp not implemented")
}
func (UnimplementedAuthServiceServer) Refresh(context.Context, *RefreshRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
}
func (UnimplementedAuthServiceServer) Logout(context.Context, *LogoutRequest) (*LogoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
}

var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestOtp", Handler: jsoncodec.Unary(AuthService_RequestOtp_FullMethodName, AuthServiceServer.RequestOtp)},
		{MethodName: "VerifyOtp", Handler: jsoncodec.Unary(AuthService_VerifyOtp_FullMethodName, AuthServiceServer.VerifyOtp)},
		{MethodName: "Refresh", Handler: jsoncodec.Unary(AuthService_Refresh_FullMethodName, AuthServiceServer.Refresh)},
		{MethodName: "Logout", Handler: jsoncodec.Unary(AuthService_Logout_FullMethodName, AuthServiceServer.Logout)},
	},
	Metadata: "api/authv1/auth.go",
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

// AuthServiceClient calls AuthService over the JSON codec.
type AuthServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthServiceClient(cc grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{cc: cc}
}

func (c *AuthServiceClient) RequestOtp(ctx context.Context, in *RequestOtpRequest, opts ...grpc.CallOption) (*RequestOtpResponse, error) {
	return jsoncodec.Invoke[RequestOtpResponse](ctx, c.cc, AuthService_RequestOtp_FullMethodName, in, opts...)
}

func (c *AuthServiceClient) VerifyOtp(ctx context.Context, in *VerifyOtpRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return jsoncodec.Invoke[AuthResponse](ctx, c.cc, AuthService_VerifyOtp_FullMethodName, in, opts...)
}

func (c *AuthServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return jsoncodec.Invoke[AuthResponse](ctx, c.cc, AuthService_Refresh_FullMethodName, in, opts...)
}

func (c *AuthServiceClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return jsoncodec.Invoke[LogoutResponse](ctx, c.cc, AuthService_Logout_FullMethodName, in, opts...)
}
