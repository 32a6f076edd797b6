// seed creates or promotes an administrator for local and staging setups:
//
//	go run ./cmd/seed -phone +919876543210 -name "Ops Admin"
//
// Re-running it for the same phone only ensures the ADMIN role.
package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"otp-auth/backend/internal/config"
	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/logger"
	"otp-auth/backend/internal/otp"
	"otp-auth/backend/internal/user/domain"
	"otp-auth/backend/internal/user/repository"
)

func main() {
	phone := flag.String("phone", "", "Phone number of the admin (E.164)")
	name := flag.String("name", "", "Display name for a newly created admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", "console")
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("seed: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("seed: open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u, created, err := ensureAdmin(ctx, repository.NewPostgresRepository(conn), *phone, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	log.Info().Str("user_id", u.ID).Str("phone", otp.MaskPhone(u.PhoneNumber)).Bool("created", created).Msg("seed: admin ready")
}

// ensureAdmin returns the user for phone carrying the ADMIN role, creating it when absent.
func ensureAdmin(ctx context.Context, users repository.Repository, phone, name string) (*domain.User, bool, error) {
	normalized, err := otp.NormalizePhone(phone)
	if err != nil {
		return nil, false, errors.New("seed: -phone must be a valid phone number")
	}
	u, err := users.GetByPhone(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		now := time.Now().UTC()
		u = &domain.User{
			ID:          uuid.New().String(),
			PhoneNumber: normalized,
			Name:        name,
			IsActive:    true,
			Roles:       []string{domain.RoleUser, domain.RoleAdmin},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := users.Create(ctx, u); err != nil {
			return nil, false, err
		}
		return u, true, nil
	}
	if u.HasRole(domain.RoleAdmin) {
		return u, false, nil
	}
	roles := append(append([]string(nil), u.Roles...), domain.RoleAdmin)
	if err := users.SetRoles(ctx, u.ID, roles); err != nil {
		return nil, false, err
	}
	u.Roles = roles
	return u, false, nil
}
