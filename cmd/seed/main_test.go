package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"otp-auth/backend/internal/user/domain"
	"otp-auth/backend/internal/user/repository"
)

func TestEnsureAdmin_CreatesThenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryRepository()

	u, created, err := ensureAdmin(ctx, users, "+919876543210", "Ops")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, u.HasRole(domain.RoleAdmin))

	again, created, err := ensureAdmin(ctx, users, "+919876543210", "")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, u.ID, again.ID)
}

func TestEnsureAdmin_PromotesExistingUser(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryRepository()
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u1", PhoneNumber: "+919876543210", IsActive: true, Roles: []string{domain.RoleUser}}))

	u, created, err := ensureAdmin(ctx, users, "+919876543210", "")
	require.NoError(t, err)
	require.False(t, created)
	require.ElementsMatch(t, []string{domain.RoleUser, domain.RoleAdmin}, u.Roles)

	stored, err := users.GetByPhone(ctx, "+919876543210")
	require.NoError(t, err)
	require.True(t, stored.HasRole(domain.RoleAdmin))
}

func TestEnsureAdmin_RejectsBadPhone(t *testing.T) {
	_, _, err := ensureAdmin(context.Background(), repository.NewMemoryRepository(), "abc", "")
	require.Error(t, err)
}
