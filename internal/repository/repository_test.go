package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestEnsureJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{}`), ensureJSON(nil))
	data := json.RawMessage(`{"k":"v"}`)
	assert.Equal(t, data, ensureJSON(data))
}

func TestLegOrDefault(t *testing.T) {
	assert.Equal(t, 1, legOrDefault(0))
	assert.Equal(t, 3, legOrDefault(3))
}

type stubPlayerRepo struct {
	player  *domain.Player
	finds   int
	upserts int
}

func (s *stubPlayerRepo) FindByPlayID(_ context.Context, _ DBTX, _, playID string) (*domain.Player, error) {
	s.finds++
	if s.player == nil || s.player.PlayID != playID {
		return nil, nil
	}
	cp := *s.player
	return &cp, nil
}

func (s *stubPlayerRepo) Upsert(_ context.Context, _ DBTX, params domain.UpsertPlayerParams) (*domain.Player, error) {
	s.upserts++
	return &domain.Player{Provider: params.Provider, PlayID: params.PlayID, Currency: params.Currency}, nil
}

func TestCachedPlayerRepository_NilClientReturnsNext(t *testing.T) {
	next := &stubPlayerRepo{}
	assert.Same(t, PlayerRepository(next), NewCachedPlayerRepository(next, nil, time.Minute, nil))
}

func TestCachedPlayerRepository_FallsThroughWhenRedisDown(t *testing.T) {
	// Nothing listens on port 1, so every cache call fails fast.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	next := &stubPlayerRepo{player: &domain.Player{Provider: "aix", PlayID: "p1", Currency: "THB"}}
	repo := NewCachedPlayerRepository(next, rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p, err := repo.FindByPlayID(context.Background(), nil, "aix", "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "THB", p.Currency)
	assert.Equal(t, 1, next.finds)

	_, err = repo.Upsert(context.Background(), nil, domain.UpsertPlayerParams{Provider: "aix", PlayID: "p1", Currency: "THB"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.upserts)

	repo.(PlayerCache).Invalidate(context.Background(), "aix", "p1")
}

func newCachedRepo(t *testing.T, next PlayerRepository) (PlayerRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCachedPlayerRepository(next, rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestCachedPlayerRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	token := "tok-1"
	next := &stubPlayerRepo{player: &domain.Player{Provider: "aix", PlayID: "p1", Currency: "THB", Token: &token}}
	repo, mr := newCachedRepo(t, next)
	key := playerCacheKey("aix", "p1")

	for i := 0; i < 3; i++ {
		p, err := repo.FindByPlayID(ctx, nil, "aix", "p1")
		require.NoError(t, err)
		require.NotNil(t, p)
		require.NotNil(t, p.Token)
		assert.Equal(t, "tok-1", *p.Token)
	}
	assert.Equal(t, 1, next.finds)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	t.Run("missing player is not cached", func(t *testing.T) {
		_, err := repo.FindByPlayID(ctx, nil, "aix", "nobody")
		require.NoError(t, err)
		assert.False(t, mr.Exists(playerCacheKey("aix", "nobody")))
	})

	t.Run("corrupt entry falls through and is rewritten", func(t *testing.T) {
		require.NoError(t, mr.Set(key, "not-json"))
		before := next.finds
		p, err := repo.FindByPlayID(ctx, nil, "aix", "p1")
		require.NoError(t, err)
		assert.Equal(t, "THB", p.Currency)
		assert.Equal(t, before+1, next.finds)

		raw, err := mr.Get(key)
		require.NoError(t, err)
		assert.True(t, json.Valid([]byte(raw)))
	})
}

func TestCachedPlayerRepository_InvalidateAfterUpsert(t *testing.T) {
	ctx := context.Background()
	oldToken := "tok-old"
	next := &stubPlayerRepo{player: &domain.Player{Provider: "aix", PlayID: "p1", Currency: "THB", Token: &oldToken}}
	repo, mr := newCachedRepo(t, next)
	key := playerCacheKey("aix", "p1")

	_, err := repo.FindByPlayID(ctx, nil, "aix", "p1")
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	// Upsert runs inside the caller's transaction, so it leaves the entry alone.
	newToken := "tok-new"
	_, err = repo.Upsert(ctx, nil, domain.UpsertPlayerParams{Provider: "aix", PlayID: "p1", Currency: "THB", Token: &newToken})
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))

	next.player.Token = &newToken
	repo.(PlayerCache).Invalidate(ctx, "aix", "p1")
	assert.False(t, mr.Exists(key))

	p, err := repo.FindByPlayID(ctx, nil, "aix", "p1")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", *p.Token)
	assert.Equal(t, 2, next.finds)
}

func TestPlayerCacheKey(t *testing.T) {
	assert.Equal(t, "seamless:player:sbo:member-7", playerCacheKey("sbo", "member-7"))
}
