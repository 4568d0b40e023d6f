package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/shopspring/decimal"
)

// Cancel voids one running wager and refunds its stake.
func (o *Orchestrator) Cancel(ctx context.Context, in CancelInput) (_ *Result, err error) {
	defer o.observe("cancel", &err)

	if err := domain.ValidateTxnID(in.TxnID); err != nil {
		return nil, err
	}

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}

	wager, err := o.reversible(ctx, in.TxnID)
	if err != nil {
		return nil, err
	}

	credit, err := o.reverse(ctx, s, wager, domain.TxCancel)
	if err != nil {
		return nil, err
	}
	return o.result(s, credit), nil
}

// Rollback reverses a batch of running wagers. Every id is checked before the
// first reversal, so one bad id rejects the whole batch.
func (o *Orchestrator) Rollback(ctx context.Context, in RollbackInput) (_ *Result, err error) {
	defer o.observe("rollback", &err)

	if len(in.TxnIDs) == 0 {
		return nil, domain.ErrValidation("at least one transaction is required")
	}
	seen := make(map[string]bool, len(in.TxnIDs))
	for _, id := range in.TxnIDs {
		if err := domain.ValidateTxnID(id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, domain.ErrValidation(fmt.Sprintf("duplicate transaction %s in batch", id))
		}
		seen[id] = true
	}

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}

	wagers := make([]*domain.TransactionRecord, 0, len(in.TxnIDs))
	for _, id := range in.TxnIDs {
		wager, err := o.reversible(ctx, id)
		if err != nil {
			return nil, err
		}
		wagers = append(wagers, wager)
	}

	var last decimal.Decimal
	for _, wager := range wagers {
		credit, err := o.reverse(ctx, s, wager, domain.TxRollback)
		if err != nil {
			return nil, err
		}
		last = credit
	}
	return o.result(s, last), nil
}

// reversible returns the current wager for id if it can still be cancelled.
func (o *Orchestrator) reversible(ctx context.Context, providerTxnID string) (*domain.TransactionRecord, error) {
	history, err := o.store.ListByProviderTxnID(ctx, o.adapter.Name(), providerTxnID)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	wager := latestWager(history)
	if wager == nil {
		return nil, domain.ErrTransactionNotFound(o.ids.ExtID(domain.TxWager, 1, providerTxnID))
	}

	switch domain.DeriveState(history) {
	case domain.StateVoid, domain.StateRollback:
		return nil, domain.ErrTransactionAlreadyCancelled(wager.ExtID)
	case domain.StateSettled:
		return nil, domain.ErrTransactionAlreadySettled(wager.ExtID)
	}
	return wager, nil
}

// reverse appends a cancel or rollback leg and refunds the wager in one scope.
func (o *Orchestrator) reverse(ctx context.Context, s *session, wager *domain.TransactionRecord, kind domain.TxKind) (decimal.Decimal, error) {
	extID := o.ids.ExtID(kind, wager.Leg, wager.ProviderTxnID)
	target := wager.ExtID

	var credit decimal.Decimal
	err := o.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Create(ctx, &domain.TransactionRecord{
			Provider:      o.adapter.Name(),
			ExtID:         extID,
			ProviderTxnID: wager.ProviderTxnID,
			Kind:          kind,
			Leg:           wager.Leg,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			GameCode:      wager.GameCode,
			RoundID:       wager.RoundID,
			BetAmount:     wager.BetAmount,
			TargetExtID:   &target,
		}); err != nil {
			if domain.HasCode(err, domain.CodeTxAlreadyExists) {
				return domain.ErrTransactionAlreadyCancelled(target)
			}
			return err
		}

		res, err := o.gateway.Cancel(ctx, s.creds, domain.WalletRequest{
			PlayID:      s.player.PlayID,
			Currency:    s.player.Currency,
			ExtID:       extID,
			Amount:      s.creds.ToWallet(wager.BetAmount),
			TargetExtID: target,
		})
		if err != nil || !o.adapter.Succeeded(res) {
			return walletFailure(wallet.OpCancel, res, err)
		}

		credit = res.Credit
		return tx.SetBalanceAfter(ctx, o.adapter.Name(), extID, s.creds.FromWallet(credit))
	})
	if err != nil {
		return decimal.Zero, err
	}

	o.logger.Info("wager reversed", "kind", string(kind), "play_id", s.player.PlayID, "ext_id", extID, "target", target)
	return credit, nil
}

// Resettle corrects the win of a settled wager. The wallet sees one adjusting
// call under the resettle leg's ext id: a payout of a positive difference or a
// debit of a negative one.
func (o *Orchestrator) Resettle(ctx context.Context, in ResettleInput) (_ *Result, err error) {
	defer o.observe("resettle", &err)

	if err := domain.ValidateTxnID(in.TxnID); err != nil {
		return nil, err
	}
	if err := domain.ValidateNonNegativeAmount(in.Amount); err != nil {
		return nil, err
	}

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}

	history, err := o.store.ListByProviderTxnID(ctx, o.adapter.Name(), in.TxnID)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	wager := latestWager(history)
	if wager == nil {
		return nil, domain.ErrTransactionNotFound(o.ids.ExtID(domain.TxWager, 1, in.TxnID))
	}
	switch domain.DeriveState(history) {
	case domain.StateVoid, domain.StateRollback:
		return nil, domain.ErrTransactionAlreadyCancelled(wager.ExtID)
	case domain.StateRunning:
		return nil, domain.ErrValidation(fmt.Sprintf("transaction %s is not settled", wager.ExtID))
	}

	n := countKind(history, domain.TxResettle) + 1
	extID := o.ids.ExtID(domain.TxResettle, n, in.TxnID)
	delta := in.Amount.Sub(wager.WinAmount)
	settledAt := in.SettledAt
	if settledAt.IsZero() {
		settledAt = o.now()
	}

	var credit decimal.Decimal
	err = o.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		target := wager.ExtID
		if _, err := tx.Create(ctx, &domain.TransactionRecord{
			Provider:      o.adapter.Name(),
			ExtID:         extID,
			ProviderTxnID: in.TxnID,
			Kind:          domain.TxResettle,
			Leg:           n,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			GameCode:      wager.GameCode,
			RoundID:       wager.RoundID,
			WinAmount:     in.Amount,
			TargetExtID:   &target,
			SettledAt:     timePtr(settledAt),
		}); err != nil {
			return err
		}
		if _, err := tx.SettleBet(ctx, domain.SettleParams{
			Provider:      o.adapter.Name(),
			ExtID:         wager.ExtID,
			ProviderTxnID: in.TxnID,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			WinAmount:     in.Amount,
			SettledAt:     settledAt,
			Resettle:      true,
		}); err != nil {
			return err
		}

		c, err := o.adjust(ctx, s, wager, extID, delta)
		if err != nil {
			return err
		}
		credit = c
		balance := s.creds.FromWallet(credit)
		if err := tx.SetBalanceAfter(ctx, o.adapter.Name(), extID, balance); err != nil {
			return err
		}
		return tx.SetBalanceAfter(ctx, o.adapter.Name(), wager.ExtID, balance)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("resettle committed", "play_id", s.player.PlayID, "ext_id", extID, "delta", delta.String())
	return o.result(s, credit), nil
}

// adjust performs the single wallet call for a resettle difference.
func (o *Orchestrator) adjust(ctx context.Context, s *session, wager *domain.TransactionRecord, extID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsZero() {
		return o.walletBalance(ctx, s)
	}

	req := domain.WalletRequest{
		PlayID:      s.player.PlayID,
		Currency:    s.player.Currency,
		ExtID:       extID,
		Amount:      s.creds.ToWallet(delta.Abs()),
		TargetExtID: wager.ExtID,
		Report:      o.report(s, wager.GameCode, wager.RoundID, ""),
	}

	op := wallet.OpPayout
	call := o.gateway.Payout
	if delta.IsNegative() {
		op = wallet.OpWager
		call = o.gateway.Wager
	}
	res, err := call(ctx, s.creds, req)
	if err != nil || !o.adapter.Succeeded(res) {
		return decimal.Zero, walletFailure(op, res, err)
	}
	return res.Credit, nil
}

func timePtr(t time.Time) *time.Time { return &t }
