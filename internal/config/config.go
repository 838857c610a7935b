// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Revocation backends accepted by REVOCATION_BACKEND.
const (
	RevocationBackendPostgres = "postgres"
	RevocationBackendRedis    = "redis"
	RevocationBackendMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC server (health, session introspection) listens on.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogDev   bool   `mapstructure:"LOG_DEV"`

	// Token signing secrets, one access/refresh pair per signature level.
	AccessUserTokenSecret   string `mapstructure:"ACCESS_USER_TOKEN_SECRET"`
	RefreshUserTokenSecret  string `mapstructure:"REFRESH_USER_TOKEN_SECRET"`
	AccessAdminTokenSecret  string `mapstructure:"ACCESS_ADMIN_TOKEN_SECRET"`
	RefreshAdminTokenSecret string `mapstructure:"REFRESH_ADMIN_TOKEN_SECRET"`
	// JWTIssuer is the iss claim set on and required from every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// AccessExpiresIn is the access token lifetime (e.g. "15m").
	AccessExpiresIn string `mapstructure:"ACCESS_EXPIRES_IN"`
	// RefreshExpiresIn is the refresh token lifetime (e.g. "168h").
	RefreshExpiresIn string `mapstructure:"REFRESH_EXPIRES_IN"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// OTPLength is the number of digits in an account confirmation code.
	OTPLength int `mapstructure:"OTP_LENGTH"`
	// ConfirmMaxAttempts is how many wrong codes an account may submit before its code is discarded.
	ConfirmMaxAttempts int `mapstructure:"CONFIRM_MAX_ATTEMPTS"`
	// StoreTimeout bounds every call into the user and revocation stores.
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// RevocationBackend selects where revoked sessions live: postgres, redis or memory.
	RevocationBackend string `mapstructure:"REVOCATION_BACKEND"`
	// RevocationPurgeInterval is how often expired revocation entries are deleted.
	RevocationPurgeInterval string `mapstructure:"REVOCATION_PURGE_INTERVAL"`
	// RedisURL is required when RevocationBackend is redis (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for the outbound email queue.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EmailKafkaTopic is the topic confirmation emails are published to.
	EmailKafkaTopic string `mapstructure:"EMAIL_KAFKA_TOPIC"`
	// EmailDeadLetterTopic receives email tasks the worker gave up on.
	EmailDeadLetterTopic string `mapstructure:"EMAIL_DLQ_TOPIC"`
	// KafkaGroupID is the consumer group ID for the email worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Worker-only SMTP settings.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// RateLimitPerSecond and RateLimitBurst configure the per-client token bucket on the REST API.
	RateLimitPerSecond float64 `mapstructure:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty means the header is ignored and clients are keyed by peer address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// SeedAdminEmail, SeedAdminPassword and SeedAdminUsername are read by cmd/seed only.
	SeedAdminEmail    string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
	SeedAdminUsername string `mapstructure:"SEED_ADMIN_USERNAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
// Token secrets are not checked here; the signature authority rejects missing secrets at server startup
// so that cmd/migrate and cmd/worker can run without them.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEV", false)
	v.SetDefault("ACCESS_USER_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_USER_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_ADMIN_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_ADMIN_TOKEN_SECRET", "")
	v.SetDefault("JWT_ISSUER", "social-media-api")
	v.SetDefault("ACCESS_EXPIRES_IN", "15m")
	v.SetDefault("REFRESH_EXPIRES_IN", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("CONFIRM_MAX_ATTEMPTS", 5)
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("REVOCATION_BACKEND", RevocationBackendPostgres)
	v.SetDefault("REVOCATION_PURGE_INTERVAL", "10m")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EMAIL_KAFKA_TOPIC", "social-email")
	v.SetDefault("EMAIL_DLQ_TOPIC", "social-email-dlq")
	v.SetDefault("KAFKA_GROUP_ID", "social-email-worker")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	// 100 requests per 15 minutes per client.
	v.SetDefault("RATE_LIMIT_PER_SECOND", 100.0/900.0)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SEED_ADMIN_EMAIL", "")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
	v.SetDefault("SEED_ADMIN_USERNAME", "Site Admin")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.OTPLength == 0 {
		c.OTPLength = 6
	}
	if c.OTPLength < 4 || c.OTPLength > 12 {
		return errors.New("config: OTP_LENGTH must be between 4 and 12")
	}
	if c.ConfirmMaxAttempts == 0 {
		c.ConfirmMaxAttempts = 5
	}
	if c.ConfirmMaxAttempts < 1 || c.ConfirmMaxAttempts > 20 {
		return errors.New("config: CONFIRM_MAX_ATTEMPTS must be between 1 and 20")
	}
	c.RevocationBackend = strings.ToLower(strings.TrimSpace(c.RevocationBackend))
	switch c.RevocationBackend {
	case RevocationBackendPostgres, RevocationBackendMemory:
	case RevocationBackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when REVOCATION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: unknown REVOCATION_BACKEND %q", c.RevocationBackend)
	}
	if c.RevocationBackend == RevocationBackendMemory && c.Env == "production" {
		return errors.New("config: REVOCATION_BACKEND=memory must not be used when APP_ENV=production")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("config: RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// AccessTTL parses AccessExpiresIn as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.AccessExpiresIn, 15*time.Minute)
}

// RefreshTTL parses RefreshExpiresIn as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.RefreshExpiresIn, 168*time.Hour)
}

// StoreCallTimeout parses StoreTimeout. Returns 3s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration {
	return parseDuration(c.StoreTimeout, 3*time.Second)
}

// PurgeInterval parses RevocationPurgeInterval. Returns 10m if unset or invalid.
func (c *Config) PurgeInterval() time.Duration {
	return parseDuration(c.RevocationPurgeInterval, 10*time.Minute)
}

// parseDuration accepts Go durations ("15m") and bare integers, which are read as seconds.
func parseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return fallback
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return fallback
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the email queue is disabled.
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

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a single-address prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	if c == nil || strings.TrimSpace(c.TrustedProxies) == "" {
		return nil, nil
	}
	var out []netip.Prefix
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
