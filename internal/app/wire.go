// Package app assembles the wallet server from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/seamless/internal/auth"
	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/guard"
	"github.com/attaboy/seamless/internal/infra"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/metrics"
	"github.com/attaboy/seamless/internal/provider"
	"github.com/attaboy/seamless/internal/repository"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/attaboy/seamless/internal/walletserver"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App is a fully wired wallet server.
type App struct {
	Router chi.Router
	Store  ledger.Store
	// Outbox is the relay source for the selected ledger driver.
	Outbox infra.OutboxSource

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Adapters returns every provider adapter the server knows how to mount.
func Adapters() map[string]settlement.Adapter {
	return map[string]settlement.Adapter{
		provider.NameAIX: provider.NewAIX(),
		provider.NameORS: provider.NewORS(),
		provider.NameSBO: provider.NewSBO(),
	}
}

// Build connects storage, loads credentials and assembles the router. The
// caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg *infra.Config, reg *prometheus.Registry, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	creds, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	health := map[string]infra.Pinger{}
	switch cfg.LedgerDriver {
	case "memory":
		store := ledger.NewMemoryStore()
		a.Store, a.Outbox = store, store
		logger.Warn("using in-memory ledger; records are lost on restart")
	default:
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		health["postgres"] = pool

		var rdb *redis.Client
		if cfg.RedisURL != "" {
			rdb, err = infra.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			health["redis"] = infra.RedisPinger{Client: rdb}
		}

		players := repository.NewCachedPlayerRepository(repository.NewPlayerRepository(), rdb, cfg.PlayerCacheTTL, logger)
		store := ledger.NewPostgresStore(pool, players, repository.NewTransactionRepository(), repository.NewOutboxRepository())
		a.Store, a.Outbox = store, store.OutboxSource()
	}

	m := metrics.New(reg)
	breaker := guard.NewCircuitBreaker(cfg.WalletBreakerThreshold, cfg.WalletBreakerReset)
	gateway := wallet.NewHTTPGateway(cfg.WalletTimeout, breaker, m, logger)
	tokens := auth.NewJWTManager(cfg.LaunchSecret, cfg.TokenTTL)

	adapters := Adapters()
	orchestrators := make(map[string]*settlement.Orchestrator)
	for _, name := range creds.Providers() {
		adapter, ok := adapters[name]
		if !ok {
			logger.Warn("credentials for unknown provider ignored", "provider", name)
			continue
		}
		resolver, err := creds.Resolver(name)
		if err != nil {
			return nil, err
		}
		orchestrators[name] = settlement.New(settlement.Deps{
			Store:    a.Store,
			Gateway:  gateway,
			Resolver: resolver,
			Adapter:  adapter,
			Tokens:   tokens,
			Metrics:  m,
			Logger:   logger,
		})
		logger.Info("provider enabled", "provider", name, "currencies", resolver.Currencies())
	}
	if len(orchestrators) == 0 {
		return nil, fmt.Errorf("no providers configured in %s", cfg.CredentialsFile)
	}

	a.Router = walletserver.NewRouter(walletserver.Deps{
		Orchestrators: orchestrators,
		Limiter:       guard.NewRateLimiter(cfg.ProviderRateLimit, time.Minute),
		Metrics:       m,
		Gatherer:      reg,
		Health:        health,
		LaunchSecret:  cfg.LaunchSecret,
		Logger:        logger,
	})
	return a, nil
}
