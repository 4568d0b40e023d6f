package settlement

import (
	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
)

// Proof is the authenticity evidence carried by a provider request. Which
// fields are set depends on the provider's scheme.
type Proof struct {
	Payload   []byte
	Fields    map[string]string
	Signature string
	Key       string
}

// Adapter is the per-provider capability set the orchestrator is parameterized over.
type Adapter interface {
	// Name is the provider key stored on every ledger row.
	Name() string

	// IDs generates ledger ext ids.
	IDs() IDStrategy

	// Verify checks the request against the resolved credentials and returns
	// ErrInvalidSignature or ErrInvalidKey on mismatch.
	Verify(creds *credentials.Credentials, proof Proof) error

	// Classify picks the report type for a game.
	Classify(creds *credentials.Credentials, gameCode string) domain.ReportType

	// Succeeded is the wallet status predicate.
	Succeeded(res domain.WalletResult) bool

	// SettleWithoutWager allows settle to create the wager row lazily.
	SettleWithoutWager() bool
}

// IDStrategy composes ledger ext ids for a provider.
type IDStrategy interface {
	// MultiLeg reports whether a settled or voided transaction id may be
	// reopened by a new wager with the next leg number.
	MultiLeg() bool
	ExtID(kind domain.TxKind, leg int, providerTxnID string) string
}

// PrefixIDs yields wager-{id}, payout-{id}, bonus-{id} and cancel-{n}-{id}.
type PrefixIDs struct{}

func (PrefixIDs) MultiLeg() bool { return false }

func (PrefixIDs) ExtID(kind domain.TxKind, leg int, providerTxnID string) string {
	switch kind {
	case domain.TxCancel, domain.TxRollback, domain.TxResettle:
		return domain.LegExtID(kind, leg, providerTxnID)
	default:
		return domain.ExtID(kind, providerTxnID)
	}
}

// LegIDs numbers every wager cycle: wager-1-X, payout-1-X, wager-2-X, cancel-2-X.
type LegIDs struct{}

func (LegIDs) MultiLeg() bool { return true }

func (LegIDs) ExtID(kind domain.TxKind, leg int, providerTxnID string) string {
	if kind == domain.TxBonus {
		return domain.ExtID(kind, providerTxnID)
	}
	return domain.LegExtID(kind, leg, providerTxnID)
}

// Base supplies the default capabilities; provider adapters embed it and
// override what differs.
type Base struct {
	Provider string
}

func (b Base) Name() string { return b.Provider }

func (Base) IDs() IDStrategy { return PrefixIDs{} }

func (Base) Classify(creds *credentials.Credentials, gameCode string) domain.ReportType {
	if creds.IsArcade(gameCode) {
		return domain.ReportArcade
	}
	return domain.ReportSlot
}

func (Base) Succeeded(res domain.WalletResult) bool { return res.OK() }

func (Base) SettleWithoutWager() bool { return false }
