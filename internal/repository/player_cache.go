package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/redis/go-redis/v9"
)

// cachedPlayerRepo is a read-through Redis cache in front of a PlayerRepository.
// Cache failures are logged and fall through to the database.
type cachedPlayerRepo struct {
	next   PlayerRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedPlayerRepository wraps next with a Redis cache. Passing a nil client returns next.
func NewCachedPlayerRepository(next PlayerRepository, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) PlayerRepository {
	if rdb == nil {
		return next
	}
	return &cachedPlayerRepo{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func playerCacheKey(provider, playID string) string {
	return "seamless:player:" + provider + ":" + playID
}

func (r *cachedPlayerRepo) FindByPlayID(ctx context.Context, db DBTX, provider, playID string) (*domain.Player, error) {
	key := playerCacheKey(provider, playID)

	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p domain.Player
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			return &p, nil
		}
		r.logger.Warn("player cache entry corrupt", "key", key)
	case err != redis.Nil:
		r.logger.Warn("player cache read failed", "key", key, "error", err)
	}

	p, err := r.next.FindByPlayID(ctx, db, provider, playID)
	if err != nil || p == nil {
		return p, err
	}

	if payload, jsonErr := json.Marshal(p); jsonErr == nil {
		if setErr := r.rdb.Set(ctx, key, payload, r.ttl).Err(); setErr != nil {
			r.logger.Warn("player cache write failed", "key", key, "error", setErr)
		}
	}
	return p, nil
}

// Upsert writes through to next. The cache entry is dropped by Invalidate once
// the caller's transaction has committed.
func (r *cachedPlayerRepo) Upsert(ctx context.Context, db DBTX, params domain.UpsertPlayerParams) (*domain.Player, error) {
	return r.next.Upsert(ctx, db, params)
}

func (r *cachedPlayerRepo) Invalidate(ctx context.Context, provider, playID string) {
	if err := r.rdb.Del(ctx, playerCacheKey(provider, playID)).Err(); err != nil {
		r.logger.Warn("player cache invalidation failed", "provider", provider, "play_id", playID, "error", err)
	}
}
