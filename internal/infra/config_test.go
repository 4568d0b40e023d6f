package infra

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		LedgerDriver:    "postgres",
		EventBus:        "log",
		OutboxBatchSize: 100,
		LaunchSecret:    strings.Repeat("s", 32),
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "5050")
	t.Setenv("WALLET_GATEWAY_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.ServerPort)
	assert.Equal(t, "3s", cfg.WalletTimeout.String())
	assert.Equal(t, "postgres", cfg.LedgerDriver)
	assert.Equal(t, 5, cfg.WalletBreakerThreshold)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"insecure default secret", func(c *Config) { c.LaunchSecret = "change-me-in-production" }, "insecure default"},
		{"short secret", func(c *Config) { c.LaunchSecret = "short" }, "too short"},
		{"short secret allowed in dev", func(c *Config) { c.LaunchSecret = "short"; c.AllowInsecureDefaults = true }, ""},
		{"bad driver", func(c *Config) { c.LedgerDriver = "mysql" }, "LEDGER_DRIVER"},
		{"bad bus", func(c *Config) { c.EventBus = "sqs" }, "EVENT_BUS"},
		{"zero batch", func(c *Config) { c.OutboxBatchSize = 0 }, "OUTBOX_BATCH_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{PGUser: "u", PGPassword: "p", PGHost: "db", PGPort: 5432, PGDatabase: "d"}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}

func TestConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "DEBUG"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: ""}).SlogLevel())
}
