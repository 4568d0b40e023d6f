//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/seamless/internal/app"
	"github.com/attaboy/seamless/internal/infra"
	"github.com/attaboy/seamless/internal/wallet/wallettest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TestLaunchSecret = "integration-test-launch-secret-0123456789"
	TestAIXSecret    = "integration-aix-secret"
	TestDBHost       = "localhost"
	TestDBPort       = 5435
	TestDBUser       = "seamless"
	TestDBPass       = "seamless"
	TestDBName       = "seamless_test"
)

// TestEnv is a wallet server on the test database, talking to a fake core wallet.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	Core   *wallettest.Fake
	App    *app.App
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func dsn(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, database)
}

func ensureTestDB(ctx context.Context) error {
	bPool, err := pgxpool.New(ctx, dsn("seamless"))
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	if err := bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists); err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func runMigrations() error {
	return infra.RunMigrations(dsn(TestDBName), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := ensureTestDB(ctx); err != nil {
			poolErr = err
			return
		}
		if err := runMigrations(); err != nil {
			poolErr = err
			return
		}
		sharedPool, poolErr = pgxpool.New(ctx, dsn(TestDBName))
	})
	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// Option adjusts the application config before NewTestEnv builds it.
type Option func(*infra.Config)

// WithRedisURL enables the Redis player cache.
func WithRedisURL(url string) Option {
	return func(cfg *infra.Config) { cfg.RedisURL = url }
}

// NewTestEnv builds the full application against the test database.
func NewTestEnv(t *testing.T, opts ...Option) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	core := wallettest.NewFake()
	coreServer := httptest.NewServer(CoreWalletHandler(core))

	credsPath := filepath.Join(t.TempDir(), "credentials.json")
	creds := fmt.Sprintf(`{"providers":{"aix":[{"currency":"THB","public_key":"aix-pub","private_key":%q,"api_url":%q,"operator_name":"it-aix"}]}}`,
		TestAIXSecret, coreServer.URL)
	if err := os.WriteFile(credsPath, []byte(creds), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	cfg := &infra.Config{
		DatabaseURL:            dsn(TestDBName),
		LedgerDriver:           "postgres",
		CredentialsFile:        credsPath,
		LaunchSecret:           TestLaunchSecret,
		TokenTTL:               time.Hour,
		WalletTimeout:          5 * time.Second,
		WalletBreakerThreshold: 5,
		WalletBreakerReset:     time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Build(context.Background(), cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}

	env := &TestEnv{
		Server: httptest.NewServer(a.Router),
		Pool:   pool,
		Core:   core,
		App:    a,
		t:      t,
	}
	env.CleanAll()
	t.Cleanup(func() {
		env.Server.Close()
		coreServer.Close()
		a.Close()
		env.CleanAll()
	})
	return env
}
