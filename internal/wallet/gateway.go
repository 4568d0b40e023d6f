// Package wallet is the boundary to the operator's core wallet service.
//
// The core wallet answers every call with a status code; 2100 is the only
// success value. Callers branch on WalletResult.OK and never inspect the
// failure sub-codes.
package wallet

import (
	"context"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
)

// Operation names used for routing and metrics.
const (
	OpBalance = "balance"
	OpWager   = "wager"
	OpPayout  = "payout"
	OpBonus   = "bonus"
	OpCancel  = "cancel"
)

// Gateway is the synchronous core wallet contract. A returned error means the
// call did not produce a usable answer (transport, timeout, open circuit);
// a non-OK WalletResult means the wallet answered and declined.
type Gateway interface {
	Balance(ctx context.Context, creds *credentials.Credentials, playID string) (domain.WalletResult, error)
	Wager(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error)
	Payout(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error)
	Bonus(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error)
	Cancel(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error)
}
