package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/shopspring/decimal"
)

// Wager debits one or more bet legs. Admission is all-or-nothing: a duplicate
// or a short balance rejects the batch before any write. Each admitted leg is
// then written and debited in its own scope.
func (o *Orchestrator) Wager(ctx context.Context, in WagerInput) (_ *Result, err error) {
	defer o.observe("wager", &err)

	if err := validateLegs(in.Legs); err != nil {
		return nil, err
	}

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}

	// Idempotency pre-scan
	planned := make([]plannedWager, 0, len(in.Legs))
	for _, leg := range in.Legs {
		p, err := o.planWager(ctx, leg)
		if err != nil {
			return nil, err
		}
		planned = append(planned, p)
	}

	// Funds
	credit, err := o.walletBalance(ctx, s)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, p := range planned {
		total = total.Add(s.creds.ToWallet(p.in.Amount))
	}
	if credit.LessThan(total) {
		return nil, domain.ErrInsufficientFund()
	}

	var last decimal.Decimal
	for _, p := range planned {
		balance, err := o.debit(ctx, s, p)
		if err != nil {
			return nil, err
		}
		last = balance
	}
	return o.result(s, last), nil
}

type plannedWager struct {
	in    WagerLeg
	leg   int
	extID string
}

// planWager picks the ledger key for a bet and rejects it if already taken.
func (o *Orchestrator) planWager(ctx context.Context, in WagerLeg) (plannedWager, error) {
	leg := 1
	if o.ids.MultiLeg() {
		history, err := o.store.ListByProviderTxnID(ctx, o.adapter.Name(), in.TxnID)
		if err != nil {
			return plannedWager{}, fmt.Errorf("list legs: %w", err)
		}
		if domain.DeriveState(history) == domain.StateRunning {
			current := latestWager(history)
			return plannedWager{}, domain.ErrTransactionAlreadyExists(current.ExtID)
		}
		leg = countKind(history, domain.TxWager) + 1
	}

	extID := o.ids.ExtID(domain.TxWager, leg, in.TxnID)
	existing, err := o.store.FindByExtID(ctx, o.adapter.Name(), extID)
	if err != nil {
		return plannedWager{}, fmt.Errorf("find wager: %w", err)
	}
	if existing != nil {
		return plannedWager{}, domain.ErrTransactionAlreadyExists(extID)
	}
	return plannedWager{in: in, leg: leg, extID: extID}, nil
}

// debit writes one wager leg and debits the wallet in a single scope.
func (o *Orchestrator) debit(ctx context.Context, s *session, p plannedWager) (decimal.Decimal, error) {
	var credit decimal.Decimal
	err := o.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Create(ctx, &domain.TransactionRecord{
			Provider:      o.adapter.Name(),
			ExtID:         p.extID,
			ProviderTxnID: p.in.TxnID,
			Kind:          domain.TxWager,
			Leg:           p.leg,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			GameCode:      p.in.GameCode,
			RoundID:       p.in.RoundID,
			BetAmount:     p.in.Amount,
		}); err != nil {
			return err
		}

		res, err := o.gateway.Wager(ctx, s.creds, domain.WalletRequest{
			PlayID:   s.player.PlayID,
			Currency: s.player.Currency,
			ExtID:    p.extID,
			Amount:   s.creds.ToWallet(p.in.Amount),
			Report:   o.report(s, p.in.GameCode, p.in.RoundID, ""),
		})
		if err != nil || !o.adapter.Succeeded(res) {
			return walletFailure(wallet.OpWager, res, err)
		}

		credit = res.Credit
		return tx.SetBalanceAfter(ctx, o.adapter.Name(), p.extID, s.creds.FromWallet(credit))
	})
	if err != nil {
		return decimal.Zero, err
	}

	o.logger.Info("wager committed", "play_id", s.player.PlayID, "ext_id", p.extID, "amount", p.in.Amount.String())
	return credit, nil
}

func validateLegs(legs []WagerLeg) error {
	if len(legs) == 0 {
		return domain.ErrValidation("at least one bet is required")
	}
	seen := make(map[string]bool, len(legs))
	for _, leg := range legs {
		if err := domain.ValidateTxnID(leg.TxnID); err != nil {
			return err
		}
		if err := domain.ValidatePositiveAmount(leg.Amount); err != nil {
			return err
		}
		if seen[leg.TxnID] {
			return domain.ErrTransactionAlreadyExists(leg.TxnID)
		}
		seen[leg.TxnID] = true
	}
	return nil
}

// latestWager returns the most recent wager leg, or nil.
func latestWager(history []domain.TransactionRecord) *domain.TransactionRecord {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == domain.TxWager {
			rec := history[i]
			return &rec
		}
	}
	return nil
}

func countKind(history []domain.TransactionRecord, kind domain.TxKind) int {
	n := 0
	for _, rec := range history {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}
