// Package handler exposes the authentication flows over gRPC and HTTP.
package handler

import (
	"context"

	authv1 "otp-auth/backend/api/authv1"
	"otp-auth/backend/internal/identity/service"
	"otp-auth/backend/internal/policy/engine"
	"otp-auth/backend/internal/server/interceptors"
	userdomain "otp-auth/backend/internal/user/domain"
)

// Authorizer decides whether the caller may perform an action.
type Authorizer interface {
	Allow(ctx context.Context, in engine.Input) (bool, error)
}

func clientFrom(ctx context.Context) service.ClientInfo {
	return service.ClientInfo{IP: interceptors.ClientIP(ctx), UserAgent: interceptors.UserAgent(ctx)}
}

func toUser(u *userdomain.User) *authv1.User {
	if u == nil {
		return nil
	}
	return &authv1.User{
		ID:          u.ID,
		PhoneNumber: u.PhoneNumber,
		Name:        u.Name,
		Email:       u.Email,
		Roles:       u.Roles,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

func toAuthResponse(res *service.TokenResult) *authv1.AuthResponse {
	return &authv1.AuthResponse{
		User:             toUser(res.User),
		TokenType:        res.TokenType,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresIn:        res.ExpiresIn,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
}

// authorizeLogout returns false when an authorizer is configured and denies the caller.
func authorizeLogout(ctx context.Context, authz Authorizer, id interceptors.Identity) (bool, error) {
	if authz == nil {
		return true, nil
	}
	return authz.Allow(ctx, engine.Input{
		Subject:  engine.Subject{ID: id.UserID, Roles: id.Roles},
		Action:   engine.ActionLogout,
		Resource: engine.Resource{OwnerID: id.UserID},
	})
}
