// worker runs background jobs against Postgres: the session, OTP and rate-limit cleanup
// sweep, and, when KAFKA_BROKERS and LOKI_URL are set, the auth event relay from Kafka
// to Loki.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"otp-auth/backend/internal/cleanup"
	"otp-auth/backend/internal/config"
	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/logger"
	otprepo "otp-auth/backend/internal/otp/repository"
	"otp-auth/backend/internal/ratelimit"
	"otp-auth/backend/internal/security"
	sessionrepo "otp-auth/backend/internal/session/repository"
	sessionservice "otp-auth/backend/internal/session/service"
	"otp-auth/backend/internal/telemetry/loki"
)

const defaultGroupID = "otp-auth-events-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", "console")
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("worker: DATABASE_URL is required; in-memory servers sweep their own stores")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: open database")
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The store only expires rows here, so hashing parameters never come into play.
	sessions := sessionservice.NewStore(sessionrepo.NewPostgresRepository(conn), security.NewHasher(security.Params{}), sessionservice.Config{})
	sweeper := &cleanup.Sweeper{
		Sessions:   sessions,
		Challenges: otprepo.NewPostgresRepository(conn),
		Buckets:    ratelimit.NewPostgresLimiter(conn, cfg.RateLimitOTPRequests, cfg.OTPRateWindow()),
		Retention:  cfg.OTPRetentionPeriod(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Dur("interval", cfg.CleanupInterval()).Msg("worker: cleanup started")
		sweeper.Run(ctx, cfg.CleanupInterval())
	}()

	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 && cfg.LokiURL != "" {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			groupID = defaultGroupID
		}
		reader := loki.NewKafkaReader(brokers, cfg.AuthEventsTopic, groupID)
		defer reader.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("topic", cfg.AuthEventsTopic).Str("group", groupID).Str("loki", cfg.LokiURL).Msg("worker: relay started")
			if err := loki.Relay(ctx, reader, loki.NewClient(cfg.LokiURL)); err != nil {
				log.Error().Err(err).Msg("worker: relay stopped")
				stop()
			}
		}()
	} else {
		log.Info().Msg("worker: KAFKA_BROKERS or LOKI_URL unset; event relay disabled")
	}

	<-ctx.Done()
	log.Info().Msg("worker: shutting down")
	wg.Wait()
}
