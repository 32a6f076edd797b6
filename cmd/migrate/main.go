// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate.
package main

import (
	"flag"
	"os"

	"otp-auth/backend/internal/config"
	"otp-auth/backend/internal/db/migrate"
	"otp-auth/backend/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", "console")
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Error().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if *direction == "version" {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate version")
		}
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migrate")
	}
	log.Info().Str("direction", *direction).Msg("migrations applied")
}
