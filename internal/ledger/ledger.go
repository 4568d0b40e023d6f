// Package ledger persists provider-local players and transaction legs.
//
// Every wallet-affecting write happens inside InTx: the callback receives a Tx,
// writes its leg, performs the paired wallet call, and returns. A nil return
// commits; any error rolls the leg back and is returned unchanged. The unique
// (provider, ext_id) constraint is the authoritative idempotency guard.
package ledger

import (
	"context"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/shopspring/decimal"
)

// Reader is the read side shared by Store and Tx.
type Reader interface {
	FindByExtID(ctx context.Context, provider, extID string) (*domain.TransactionRecord, error)
	ListByProviderTxnID(ctx context.Context, provider, providerTxnID string) ([]domain.TransactionRecord, error)
}

// Store is the ledger contract used by the settlement orchestrator.
type Store interface {
	Reader

	// PlayerByPlayID returns nil when the player has never launched.
	PlayerByPlayID(ctx context.Context, provider, playID string) (*domain.Player, error)

	// UpsertPlayer creates or refreshes a player on launch.
	UpsertPlayer(ctx context.Context, params domain.UpsertPlayerParams) (*domain.Player, error)

	// InTx runs fn in a scoped transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side, valid only inside InTx. Reads see the scope's own writes.
type Tx interface {
	Reader

	// Create appends a leg; a duplicate ext id fails with ErrTransactionAlreadyExists.
	Create(ctx context.Context, rec *domain.TransactionRecord) (*domain.TransactionRecord, error)

	// SettleBet upserts the settlement marker and win amount.
	SettleBet(ctx context.Context, params domain.SettleParams) (*domain.TransactionRecord, error)

	// SetBalanceAfter stores the wallet balance reported for a leg.
	SetBalanceAfter(ctx context.Context, provider, extID string, balance decimal.Decimal) error
}
