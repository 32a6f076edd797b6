// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minProductionSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address of the REST and ops (health, metrics) listener.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores (not allowed in production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// JWTAccessSecret signs access tokens. Must differ from JWTRefreshSecret.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	JWTAudience      string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime in <int><s|m|h|d> form (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "7d").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// Argon2 cost for OTP code and refresh secret hashes.
	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`

	OTPTTL            string `mapstructure:"OTP_TTL"`
	OTPResendCooldown string `mapstructure:"OTP_RESEND_COOLDOWN"`
	OTPQuota          int    `mapstructure:"OTP_QUOTA"`
	OTPQuotaWindow    string `mapstructure:"OTP_QUOTA_WINDOW"`
	// OTPRetention is how long the worker keeps OTP challenges before purging them.
	OTPRetention string `mapstructure:"OTP_RETENTION"`

	// SessionMaxActive is the maximum number of concurrently active sessions per user.
	SessionMaxActive int `mapstructure:"SESSION_MAX_ACTIVE"`
	// SessionCleanupInterval is the worker sweep period.
	SessionCleanupInterval string `mapstructure:"SESSION_CLEANUP_INTERVAL"`
	// RefreshReuseRevokesFamily revokes the whole token family when a validly signed
	// refresh token matches no active session.
	RefreshReuseRevokesFamily bool `mapstructure:"REFRESH_REUSE_REVOKES_FAMILY"`
	// RefreshReuseGrace skips family revocation when the family rotated this recently.
	RefreshReuseGrace string `mapstructure:"REFRESH_REUSE_GRACE"`

	// RateLimitOTPRequests is the per-client-IP RequestOtp limit per RateLimitOTPWindow.
	RateLimitOTPRequests int    `mapstructure:"RATE_LIMIT_OTP_REQUESTS"`
	RateLimitOTPWindow   string `mapstructure:"RATE_LIMIT_OTP_WINDOW"`

	// SMSLocalAPIKey is the API key for SMS Local. Required unless OTPReturnToClient is set.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// OTPReturnToClient enables dev OTP mode: no SMS, OTP readable at GET /dev/otp. Forbidden in production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// PolicyFile optionally replaces the built-in authorization Rego policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of brokers for auth events (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth events.
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the worker's Loki relay.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes auth events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "otp-auth")
	v.SetDefault("JWT_AUDIENCE", "otp-auth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "7d")
	v.SetDefault("ARGON2_MEMORY_KIB", 19456)
	v.SetDefault("ARGON2_ITERATIONS", 2)
	v.SetDefault("ARGON2_PARALLELISM", 1)
	v.SetDefault("OTP_TTL", "2m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_QUOTA", 5)
	v.SetDefault("OTP_QUOTA_WINDOW", "10m")
	v.SetDefault("OTP_RETENTION", "30d")
	v.SetDefault("SESSION_MAX_ACTIVE", 5)
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "5m")
	v.SetDefault("REFRESH_REUSE_REVOKES_FAMILY", true)
	v.SetDefault("REFRESH_REUSE_GRACE", "10s")
	v.SetDefault("RATE_LIMIT_OTP_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT_OTP_WINDOW", "1m")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "otp-auth")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "otp-auth-events")
	v.SetDefault("KAFKA_GROUP_ID", "otp-auth-event-relay")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	prod := c.IsProduction()
	if c.DatabaseURL == "" && prod {
		return errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}

	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if prod && (len(c.JWTAccessSecret) < minProductionSecretLen || len(c.JWTRefreshSecret) < minProductionSecretLen) {
		return fmt.Errorf("config: JWT secrets must be at least %d bytes in production", minProductionSecretLen)
	}

	durations := []struct{ key, val string }{
		{"JWT_ACCESS_TTL", c.JWTAccessTTL},
		{"JWT_REFRESH_TTL", c.JWTRefreshTTL},
		{"OTP_TTL", c.OTPTTL},
		{"OTP_RESEND_COOLDOWN", c.OTPResendCooldown},
		{"OTP_QUOTA_WINDOW", c.OTPQuotaWindow},
		{"OTP_RETENTION", c.OTPRetention},
		{"SESSION_CLEANUP_INTERVAL", c.SessionCleanupInterval},
		{"REFRESH_REUSE_GRACE", c.RefreshReuseGrace},
		{"RATE_LIMIT_OTP_WINDOW", c.RateLimitOTPWindow},
	}
	for _, d := range durations {
		if _, err := ParseTTL(d.val); err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
	}

	// Challenges younger than these windows still drive cooldown, quota and verification.
	retention := c.OTPRetentionPeriod()
	for _, d := range []struct {
		key string
		dur time.Duration
	}{
		{"OTP_QUOTA_WINDOW", c.OTPWindow()},
		{"OTP_RESEND_COOLDOWN", c.OTPCooldown()},
		{"OTP_TTL", c.OTPExpiry()},
	} {
		if retention < d.dur {
			return fmt.Errorf("config: OTP_RETENTION (%s) must not be shorter than %s (%s)", c.OTPRetention, d.key, d.dur)
		}
	}

	if c.OTPQuota <= 0 {
		return errors.New("config: OTP_QUOTA must be positive")
	}
	if c.SessionMaxActive <= 0 {
		return errors.New("config: SESSION_MAX_ACTIVE must be positive")
	}
	if c.RateLimitOTPRequests <= 0 {
		return errors.New("config: RATE_LIMIT_OTP_REQUESTS must be positive")
	}
	if c.Argon2MemoryKiB < 8 || c.Argon2Iterations == 0 || c.Argon2Parallelism == 0 {
		return errors.New("config: ARGON2_MEMORY_KIB >= 8, ARGON2_ITERATIONS >= 1 and ARGON2_PARALLELISM >= 1 are required")
	}

	if c.OTPReturnToClient && prod {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if !c.OTPReturnToClient && c.SMSLocalAPIKey == "" {
		return errors.New("config: SMS_LOCAL_API_KEY must be set unless OTP_RETURN_TO_CLIENT=true")
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// AccessTTL returns the parsed JWTAccessTTL. Load guarantees it is valid.
func (c *Config) AccessTTL() time.Duration { return mustTTL(c.JWTAccessTTL) }

// RefreshTTL returns the parsed JWTRefreshTTL.
func (c *Config) RefreshTTL() time.Duration { return mustTTL(c.JWTRefreshTTL) }

// OTPExpiry returns the parsed OTPTTL.
func (c *Config) OTPExpiry() time.Duration { return mustTTL(c.OTPTTL) }

// OTPCooldown returns the parsed OTPResendCooldown.
func (c *Config) OTPCooldown() time.Duration { return mustTTL(c.OTPResendCooldown) }

// OTPWindow returns the parsed OTPQuotaWindow.
func (c *Config) OTPWindow() time.Duration { return mustTTL(c.OTPQuotaWindow) }

// OTPRetentionPeriod returns the parsed OTPRetention.
func (c *Config) OTPRetentionPeriod() time.Duration { return mustTTL(c.OTPRetention) }

// CleanupInterval returns the parsed SessionCleanupInterval.
func (c *Config) CleanupInterval() time.Duration { return mustTTL(c.SessionCleanupInterval) }

// ReuseGrace returns the parsed RefreshReuseGrace.
func (c *Config) ReuseGrace() time.Duration { return mustTTL(c.RefreshReuseGrace) }

// OTPRateWindow returns the parsed RateLimitOTPWindow.
func (c *Config) OTPRateWindow() time.Duration { return mustTTL(c.RateLimitOTPWindow) }

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka producer and the worker relay.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mustTTL(s string) time.Duration {
	d, err := ParseTTL(s)
	if err != nil {
		panic(fmt.Sprintf("config: duration %q used before validation: %v", s, err))
	}
	return d
}
