package settlement

import (
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/shopspring/decimal"
)

// Amounts in inputs and results are in provider units. The orchestrator
// converts to wallet units with the credentials' conversion factor.

type LaunchInput struct {
	PlayID   string
	Username string
	Currency string
}

type LaunchResult struct {
	Player *domain.Player
	Token  string
}

type AuthInput struct {
	Token string
	Proof Proof
}

type AuthResult struct {
	Player  *domain.Player
	Balance decimal.Decimal
}

type BalanceInput struct {
	PlayID string
	Proof  Proof
}

// WagerLeg is one bet inside a debit call. Single-bet providers send one.
type WagerLeg struct {
	TxnID    string
	RoundID  string
	GameCode string
	Amount   decimal.Decimal
}

type WagerInput struct {
	PlayID string
	Proof  Proof
	Legs   []WagerLeg
}

type PayoutInput struct {
	PlayID    string
	Proof     Proof
	TxnID     string
	RoundID   string
	GameCode  string
	Amount    decimal.Decimal
	SettledAt time.Time
}

type BonusInput struct {
	PlayID   string
	Proof    Proof
	RoundID  string
	GameCode string
	Amount   decimal.Decimal
}

type CancelInput struct {
	PlayID string
	Proof  Proof
	TxnID  string
}

type RollbackInput struct {
	PlayID string
	Proof  Proof
	TxnIDs []string
}

type ResettleInput struct {
	PlayID    string
	Proof     Proof
	TxnID     string
	Amount    decimal.Decimal
	SettledAt time.Time
}

// Result carries the resulting balance. Replayed is set when a settle was
// answered from the ledger without a wallet call.
type Result struct {
	Balance  decimal.Decimal
	Currency string
	Replayed bool
}

// StateResult is the derived lifecycle of one provider transaction id.
type StateResult struct {
	State domain.TxState
	Legs  []domain.TransactionRecord
}
