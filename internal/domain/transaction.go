package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind enumerates the ledger legs a provider transaction can accumulate.
type TxKind string

const (
	TxWager    TxKind = "wager"
	TxPayout   TxKind = "payout"
	TxBonus    TxKind = "bonus"
	TxCancel   TxKind = "cancel"
	TxRollback TxKind = "rollback"
	TxResettle TxKind = "resettle"
)

// TxState is the lifecycle state of one provider transaction id, derived from
// its most recent leg.
type TxState string

const (
	StateNone     TxState = "none"
	StateRunning  TxState = "running"
	StateSettled  TxState = "settled"
	StateVoid     TxState = "void"
	StateRollback TxState = "rollback"
)

// Terminal reports whether repeated settlement attempts should be refused or replayed.
func (s TxState) Terminal() bool {
	return s == StateSettled || s == StateVoid || s == StateRollback
}

// TransactionRecord represents a provider_transactions row (append-only per leg).
// SettledAt is nil while the wager is still running.
type TransactionRecord struct {
	ID            uuid.UUID        `json:"id"`
	Provider      string           `json:"provider"`
	ExtID         string           `json:"ext_id"`
	ProviderTxnID string           `json:"provider_txn_id"`
	Kind          TxKind           `json:"kind"`
	Leg           int              `json:"leg"`
	PlayerID      uuid.UUID        `json:"player_id"`
	PlayID        string           `json:"play_id"`
	Currency      string           `json:"currency"`
	GameCode      string           `json:"game_code"`
	RoundID       string           `json:"round_id"`
	BetAmount     decimal.Decimal  `json:"bet_amount"`
	WinAmount     decimal.Decimal  `json:"win_amount"`
	BalanceAfter  *decimal.Decimal `json:"balance_after,omitempty"`
	TargetExtID   *string          `json:"target_ext_id,omitempty"`
	SettledAt     *time.Time       `json:"settled_at,omitempty"`
	Metadata      json.RawMessage  `json:"metadata"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Settled reports whether the settlement marker is present.
func (r *TransactionRecord) Settled() bool {
	return r != nil && r.SettledAt != nil
}

// SettleParams marks a wager settled. When no row with ExtID exists the store
// creates one from the embedded record fields. An already settled row is only
// overwritten when Resettle is set.
type SettleParams struct {
	Provider      string
	ExtID         string
	ProviderTxnID string
	PlayerID      uuid.UUID
	PlayID        string
	Currency      string
	GameCode      string
	RoundID       string
	WinAmount     decimal.Decimal
	SettledAt     time.Time
	Resettle      bool
}

// ExtID composes the ledger idempotency key "{kind}-{providerTxnID}".
func ExtID(kind TxKind, providerTxnID string) string {
	return fmt.Sprintf("%s-%s", kind, providerTxnID)
}

// LegExtID composes a multi-leg key "{kind}-{leg}-{providerTxnID}".
func LegExtID(kind TxKind, leg int, providerTxnID string) string {
	return fmt.Sprintf("%s-%d-%s", kind, leg, providerTxnID)
}

// DeriveState folds a provider transaction's leg history (oldest first) into its state.
func DeriveState(legs []TransactionRecord) TxState {
	state := StateNone
	for _, leg := range legs {
		switch leg.Kind {
		case TxWager:
			if leg.Settled() {
				state = StateSettled
			} else {
				state = StateRunning
			}
		case TxPayout, TxResettle:
			state = StateSettled
		case TxCancel:
			state = StateVoid
		case TxRollback:
			state = StateRollback
		}
	}
	return state
}
