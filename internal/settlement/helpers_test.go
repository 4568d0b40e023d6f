package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/seamless/internal/auth"
	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/metrics"
	"github.com/attaboy/seamless/internal/wallet/wallettest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testProvider = "aix"

// keyAdapter accepts a request when the presented key equals the public key.
type keyAdapter struct {
	Base
	ids  IDStrategy
	lazy bool
}

func (a keyAdapter) IDs() IDStrategy {
	if a.ids != nil {
		return a.ids
	}
	return PrefixIDs{}
}

func (a keyAdapter) SettleWithoutWager() bool { return a.lazy }

func (keyAdapter) Verify(creds *credentials.Credentials, proof Proof) error {
	if proof.Key != creds.PublicKey() {
		return domain.ErrInvalidKey()
	}
	return nil
}

type harness struct {
	orch   *Orchestrator
	store  *ledger.MemoryStore
	wallet *wallettest.Fake
	tokens *auth.JWTManager
	now    time.Time
}

type harnessOption func(*keyAdapter)

func withLegIDs() harnessOption     { return func(a *keyAdapter) { a.ids = LegIDs{} } }
func withLazySettle() harnessOption { return func(a *keyAdapter) { a.lazy = true } }

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	resolver, err := credentials.NewResolver(testProvider, []credentials.Entry{
		{Currency: "THB", PublicKey: "pub-thb", PrivateKey: "priv-thb", APIURL: "http://core", OperatorName: "op-thb", ArcadeGames: []string{"fish-1"}},
		{Currency: "IDR", PublicKey: "pub-idr", PrivateKey: "priv-idr", APIURL: "http://core", OperatorName: "op-idr", ConversionFactor: "1000"},
	})
	require.NoError(t, err)

	adapter := keyAdapter{Base: Base{Provider: testProvider}}
	for _, opt := range opts {
		opt(&adapter)
	}

	h := &harness{
		store:  ledger.NewMemoryStore(),
		wallet: wallettest.NewFake(),
		tokens: auth.NewJWTManager("orchestrator-test-secret-orchestrator", time.Hour),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.orch = New(Deps{
		Store:    h.store,
		Gateway:  h.wallet,
		Resolver: resolver,
		Adapter:  adapter,
		Tokens:   h.tokens,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    func() time.Time { return h.now },
	})
	return h
}

// player launches a player and seeds its wallet balance.
func (h *harness) player(t *testing.T, playID, currency string, balance int64) {
	t.Helper()
	_, err := h.orch.Launch(context.Background(), LaunchInput{PlayID: playID, Username: "user-" + playID, Currency: currency})
	require.NoError(t, err)
	h.wallet.SetBalance(playID, decimal.NewFromInt(balance))
}

func proofFor(currency string) Proof {
	if currency == "IDR" {
		return Proof{Key: "pub-idr"}
	}
	return Proof{Key: "pub-thb"}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (h *harness) wager(playID, txnID, amount string) (*Result, error) {
	return h.orch.Wager(context.Background(), WagerInput{
		PlayID: playID,
		Proof:  proofFor("THB"),
		Legs:   []WagerLeg{{TxnID: txnID, RoundID: "R-" + txnID, GameCode: "slot-1", Amount: dec(amount)}},
	})
}

func (h *harness) payout(playID, txnID, amount string) (*Result, error) {
	return h.orch.Payout(context.Background(), PayoutInput{
		PlayID: playID,
		Proof:  proofFor("THB"),
		TxnID:  txnID,
		Amount: dec(amount),
	})
}

func (h *harness) record(t *testing.T, extID string) *domain.TransactionRecord {
	t.Helper()
	rec, err := h.store.FindByExtID(context.Background(), testProvider, extID)
	require.NoError(t, err)
	return rec
}
