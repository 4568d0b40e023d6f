package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore is the production Store over a pgx pool.
type PostgresStore struct {
	pool         *pgxpool.Pool
	players      repository.PlayerRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
}

// NewPostgresStore creates a ledger store with the given repositories.
func NewPostgresStore(
	pool *pgxpool.Pool,
	players repository.PlayerRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		players:      players,
		transactions: transactions,
		outbox:       outbox,
	}
}

func (s *PostgresStore) PlayerByPlayID(ctx context.Context, provider, playID string) (*domain.Player, error) {
	p, err := s.players.FindByPlayID(ctx, s.pool, provider, playID)
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	return p, nil
}

// UpsertPlayer writes the player and its launch event atomically.
func (s *PostgresStore) UpsertPlayer(ctx context.Context, params domain.UpsertPlayerParams) (*domain.Player, error) {
	var player *domain.Player
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		p, err := s.players.Upsert(ctx, tx, params)
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewPlayerLaunchedEvent(p)); err != nil {
			return err
		}
		player = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cache, ok := s.players.(repository.PlayerCache); ok {
		cache.Invalidate(ctx, params.Provider, params.PlayID)
	}
	return player, nil
}

func (s *PostgresStore) FindByExtID(ctx context.Context, provider, extID string) (*domain.TransactionRecord, error) {
	rec, err := s.transactions.FindByExtID(ctx, s.pool, provider, extID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListByProviderTxnID(ctx context.Context, provider, providerTxnID string) ([]domain.TransactionRecord, error) {
	return s.transactions.ListByProviderTxnID(ctx, s.pool, provider, providerTxnID)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, store: s})
	})
}

// OutboxSource exposes the outbox to the relay.
func (s *PostgresStore) OutboxSource() repository.OutboxSource {
	return repository.OutboxSource{DB: s.pool, Repo: s.outbox}
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx    pgx.Tx
	store *PostgresStore
}

func (t *pgTx) FindByExtID(ctx context.Context, provider, extID string) (*domain.TransactionRecord, error) {
	rec, err := t.store.transactions.FindByExtID(ctx, t.tx, provider, extID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return rec, nil
}

func (t *pgTx) ListByProviderTxnID(ctx context.Context, provider, providerTxnID string) ([]domain.TransactionRecord, error) {
	return t.store.transactions.ListByProviderTxnID(ctx, t.tx, provider, providerTxnID)
}

// Create inserts the leg and its outbox event in the caller's transaction.
func (t *pgTx) Create(ctx context.Context, rec *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	out, err := t.store.transactions.Insert(ctx, t.tx, rec)
	if err != nil {
		return nil, err
	}
	if err := t.store.outbox.Insert(ctx, t.tx, domain.NewTransactionRecordedEvent(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) SettleBet(ctx context.Context, params domain.SettleParams) (*domain.TransactionRecord, error) {
	out, err := t.store.transactions.Settle(ctx, t.tx, params)
	if err != nil {
		return nil, err
	}
	if err := t.store.outbox.Insert(ctx, t.tx, domain.NewTransactionSettledEvent(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) SetBalanceAfter(ctx context.Context, provider, extID string, balance decimal.Decimal) error {
	return t.store.transactions.SetBalanceAfter(ctx, t.tx, provider, extID, balance)
}
