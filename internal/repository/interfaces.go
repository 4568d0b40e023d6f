package repository

import (
	"context"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PlayerRepository provides access to provider_players.
type PlayerRepository interface {
	// FindByPlayID returns the player for a provider play id, or nil.
	FindByPlayID(ctx context.Context, db DBTX, provider, playID string) (*domain.Player, error)

	// Upsert creates the player on first launch, otherwise refreshes username and token.
	// The stored currency never changes after creation.
	Upsert(ctx context.Context, db DBTX, params domain.UpsertPlayerParams) (*domain.Player, error)
}

// PlayerCache is implemented by player repositories that cache reads.
// Invalidate must run after the transaction that changed the player commits,
// otherwise a concurrent reader can repopulate the entry with the old row.
type PlayerCache interface {
	Invalidate(ctx context.Context, provider, playID string)
}

// TransactionRepository provides access to provider_transactions.
type TransactionRepository interface {
	// FindByExtID is the idempotency lookup. Returns nil if absent.
	FindByExtID(ctx context.Context, db DBTX, provider, extID string) (*domain.TransactionRecord, error)

	// ListByProviderTxnID returns every leg for a provider transaction id, oldest first.
	ListByProviderTxnID(ctx context.Context, db DBTX, provider, providerTxnID string) ([]domain.TransactionRecord, error)

	// Insert appends a leg. A duplicate (provider, ext_id) yields ErrTransactionAlreadyExists.
	Insert(ctx context.Context, db DBTX, rec *domain.TransactionRecord) (*domain.TransactionRecord, error)

	// Settle sets the settlement marker and win amount, creating the row if absent.
	Settle(ctx context.Context, db DBTX, params domain.SettleParams) (*domain.TransactionRecord, error)

	// SetBalanceAfter records the wallet balance returned for a leg.
	SetBalanceAfter(ctx context.Context, db DBTX, provider, extID string, balance decimal.Decimal) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the relay, oldest first.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished stamps publishedAt on the given sequence ids.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
