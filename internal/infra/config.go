package infra

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL  string `env:"DATABASE_URL"`
	PGHost       string `env:"PGHOST" envDefault:"localhost"`
	PGPort       int    `env:"PGPORT" envDefault:"5435"`
	PGUser       string `env:"PGUSER" envDefault:"seamless"`
	PGPassword   string `env:"PGPASSWORD" envDefault:"seamless"`
	PGDatabase   string `env:"PGDATABASE" envDefault:"seamless"`
	PGMaxConns   int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	LedgerDriver string `env:"LEDGER_DRIVER" envDefault:"postgres"` // postgres | memory
	AutoMigrate  bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Redis player cache. Empty URL disables the cache.
	RedisURL       string        `env:"REDIS_URL"`
	PlayerCacheTTL time.Duration `env:"PLAYER_CACHE_TTL" envDefault:"5m"`

	// Core wallet gateway
	WalletTimeout          time.Duration `env:"WALLET_GATEWAY_TIMEOUT" envDefault:"10s"`
	WalletBreakerThreshold int           `env:"WALLET_BREAKER_THRESHOLD" envDefault:"5"`
	WalletBreakerReset     time.Duration `env:"WALLET_BREAKER_RESET" envDefault:"30s"`

	// Providers
	CredentialsFile   string        `env:"CREDENTIALS_FILE" envDefault:"config/credentials.json"`
	LaunchSecret      string        `env:"LAUNCH_SECRET" envDefault:"change-me-in-production"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	ProviderRateLimit int           `env:"PROVIDER_RATE_LIMIT" envDefault:"600"` // requests per minute per provider+remote

	// Server
	ServerPort int `env:"SERVER_PORT" envDefault:"4001"`

	// Event relay
	EventBus           string        `env:"EVENT_BUS" envDefault:"log"` // kafka | nats | log
	KafkaBrokers       string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	NATSURL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	switch c.LedgerDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("LEDGER_DRIVER must be postgres or memory, got %q", c.LedgerDriver)
	}
	switch c.EventBus {
	case "kafka", "nats", "log":
	default:
		return fmt.Errorf("EVENT_BUS must be kafka, nats or log, got %q", c.EventBus)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.LaunchSecret == "change-me-in-production" {
		return fmt.Errorf("LAUNCH_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.LaunchSecret) < 32 {
		return fmt.Errorf("LAUNCH_SECRET is too short (%d chars); minimum 32 characters required", len(c.LaunchSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
