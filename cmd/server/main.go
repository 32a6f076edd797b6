// server runs the OTP auth API: gRPC on GRPC_ADDR and REST plus probes and metrics on HTTP_ADDR.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"

	"otp-auth/backend/internal/audit"
	auditrepo "otp-auth/backend/internal/audit/repository"
	"otp-auth/backend/internal/cleanup"
	"otp-auth/backend/internal/config"
	"otp-auth/backend/internal/db"
	"otp-auth/backend/internal/devotp"
	"otp-auth/backend/internal/health"
	identityservice "otp-auth/backend/internal/identity/service"
	"otp-auth/backend/internal/logger"
	"otp-auth/backend/internal/metrics"
	otprepo "otp-auth/backend/internal/otp/repository"
	otpservice "otp-auth/backend/internal/otp/service"
	"otp-auth/backend/internal/otp/sms"
	"otp-auth/backend/internal/policy/engine"
	"otp-auth/backend/internal/ratelimit"
	"otp-auth/backend/internal/security"
	"otp-auth/backend/internal/server"
	"otp-auth/backend/internal/server/interceptors"
	sessionhandler "otp-auth/backend/internal/session/handler"
	sessionrepo "otp-auth/backend/internal/session/repository"
	sessionservice "otp-auth/backend/internal/session/service"
	"otp-auth/backend/internal/telemetry"
	telemetryotel "otp-auth/backend/internal/telemetry/otel"
	"otp-auth/backend/internal/telemetry/producer"
	userrepo "otp-auth/backend/internal/user/repository"
)

const (
	appName         = "otp-auth"
	healthInterval  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", "console")
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if !cfg.IsProduction() {
		figure.NewFigure(appName, "cybermedium", true).Print()
		fmt.Println()
	}
	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("server stopped")
}

// stores holds the persistence layer, Postgres-backed or in-memory.
type stores struct {
	conn     *sql.DB
	otp      otprepo.Repository
	sessions sessionrepo.Repository
	users    userrepo.Repository
	audit    auditrepo.Repository
	limiter  ratelimit.Limiter
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		return &stores{
			otp:      otprepo.NewMemoryRepository(),
			sessions: sessionrepo.NewMemoryRepository(),
			users:    userrepo.NewMemoryRepository(),
			audit:    auditrepo.NewMemoryRepository(),
			limiter:  ratelimit.NewMemoryLimiter(cfg.RateLimitOTPRequests, cfg.OTPRateWindow()),
		}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &stores{
		conn:     conn,
		otp:      otprepo.NewPostgresRepository(conn),
		sessions: sessionrepo.NewPostgresRepository(conn),
		users:    userrepo.NewPostgresRepository(conn),
		audit:    auditrepo.NewPostgresRepository(conn),
		limiter:  ratelimit.NewPostgresLimiter(conn, cfg.RateLimitOTPRequests, cfg.OTPRateWindow()),
	}, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTELServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	if st.conn != nil {
		defer st.conn.Close()
	}

	hasher := security.NewHasher(security.Params{
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
	})
	tokens := security.NewTokenProvider(security.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	recorder := metrics.NewRecorder()

	sessionStore := sessionservice.NewStore(st.sessions, hasher, sessionservice.Config{
		MaxActive: cfg.SessionMaxActive,
		Observer:  recorder,
	})
	auditLogger := audit.NewLogger(st.audit, interceptors.ClientIP)

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer = producer.NewKafkaProducer(brokers, cfg.AuthEventsTopic)
		emitters = append(emitters, kafkaProducer)
		log.Info().Strs("brokers", brokers).Str("topic", cfg.AuthEventsTopic).Msg("auth events to kafka")
	}
	events := telemetry.Fanout(emitters...)

	authz, err := engine.NewOPAAuthorizer(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	authDeps := identityservice.Deps{
		OTP: otpservice.NewEngine(st.otp, hasher, otpservice.Config{
			TTL:      cfg.OTPExpiry(),
			Cooldown: cfg.OTPCooldown(),
			Quota:    cfg.OTPQuota,
			Window:   cfg.OTPWindow(),
		}),
		Users:              st.users,
		Sessions:           sessionStore,
		Tokens:             tokens,
		Audit:              auditLogger,
		Events:             events,
		Metrics:            recorder,
		ExpiresIn:          cfg.JWTAccessTTL,
		ReuseRevokesFamily: cfg.RefreshReuseRevokesFamily,
		ReuseGrace:         cfg.ReuseGrace(),
	}
	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		mem := devotp.NewMemoryStore()
		authDeps.DevOTP, devStore = mem, mem
		log.Warn().Msg("OTP_RETURN_TO_CLIENT is on; codes are readable at GET /dev/otp")
	}
	if cfg.SMSLocalAPIKey != "" {
		authDeps.Sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}

	healthServer := grpchealth.NewServer()
	deps := server.Deps{
		Auth:             identityservice.NewAuthService(authDeps),
		Sessions:         sessionhandler.NewSessions(sessionStore, authz, auditLogger),
		Authorizer:       authz,
		Tokens:           tokens,
		SessionValidator: server.SessionActive(sessionStore),
		Limiter:          st.limiter,
		OnRateLimited:    recorder.RateLimited,
		Emitter:          events,
		Health:           healthServer,
	}

	var checker *health.Checker
	if st.conn != nil {
		checker = health.NewChecker(st.conn, authz)
	} else {
		checker = health.NewChecker(nil, authz)
		// Memory stores live in this process, so the sweep runs here instead of in the worker.
		sweeper := &cleanup.Sweeper{Sessions: sessionStore, Challenges: st.otp, Retention: cfg.OTPRetentionPeriod()}
		go sweeper.Run(ctx, cfg.CleanupInterval())
	}
	go checker.Watch(ctx, healthServer, healthInterval)

	grpcServer := server.NewGRPCServer(deps)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHTTPRouter(deps, server.HTTPDeps{Checker: checker, Metrics: recorder.Handler(), DevOTP: devStore}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed, shutting down")
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	stopGRPC(shutdownCtx, grpcServer)

	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("kafka producer close")
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	return serveErr
}

// stopGRPC drains in-flight RPCs, forcing a stop when ctx expires first.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}
