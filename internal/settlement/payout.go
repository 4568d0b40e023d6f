package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/shopspring/decimal"
)

// Payout settles a running wager with its win amount. A repeated payout for an
// already settled wager returns the recorded balance without a wallet call.
func (o *Orchestrator) Payout(ctx context.Context, in PayoutInput) (_ *Result, err error) {
	defer o.observe("payout", &err)

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

	switch {
	case wager == nil && !o.adapter.SettleWithoutWager():
		return nil, domain.ErrTransactionNotFound(o.ids.ExtID(domain.TxWager, 1, in.TxnID))
	case wager == nil:
		// settled lazily below
	case wager.Settled():
		return o.replay(ctx, s, wager)
	default:
		switch domain.DeriveState(history) {
		case domain.StateVoid, domain.StateRollback:
			return nil, domain.ErrTransactionAlreadyCancelled(wager.ExtID)
		}
	}

	leg := 1
	if wager != nil {
		leg = wager.Leg
	}
	wagerExtID := o.ids.ExtID(domain.TxWager, leg, in.TxnID)
	payoutExtID := o.ids.ExtID(domain.TxPayout, leg, in.TxnID)
	settledAt := in.SettledAt
	if settledAt.IsZero() {
		settledAt = o.now()
	}

	var credit decimal.Decimal
	err = o.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		rec, err := tx.SettleBet(ctx, domain.SettleParams{
			Provider:      o.adapter.Name(),
			ExtID:         wagerExtID,
			ProviderTxnID: in.TxnID,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			GameCode:      in.GameCode,
			RoundID:       in.RoundID,
			WinAmount:     in.Amount,
			SettledAt:     settledAt,
		})
		if err != nil {
			return err
		}

		res, err := o.gateway.Payout(ctx, s.creds, domain.WalletRequest{
			PlayID:      s.player.PlayID,
			Currency:    s.player.Currency,
			ExtID:       payoutExtID,
			Amount:      s.creds.ToWallet(in.Amount),
			TargetExtID: wagerExtID,
			Report:      o.report(s, firstNonEmpty(in.GameCode, rec.GameCode), firstNonEmpty(in.RoundID, rec.RoundID), ""),
		})
		if err != nil || !o.adapter.Succeeded(res) {
			return walletFailure(wallet.OpPayout, res, err)
		}

		credit = res.Credit
		return tx.SetBalanceAfter(ctx, o.adapter.Name(), wagerExtID, s.creds.FromWallet(credit))
	})
	if domain.HasCode(err, domain.CodeTxAlreadySettled) {
		// A concurrent payout committed between the read and the settle.
		settled, findErr := o.store.FindByExtID(ctx, o.adapter.Name(), wagerExtID)
		if findErr == nil && settled.Settled() {
			return o.replay(ctx, s, settled)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	o.logger.Info("payout committed", "play_id", s.player.PlayID, "ext_id", payoutExtID, "amount", in.Amount.String())
	return o.result(s, credit), nil
}

// replay answers a repeated settle from the ledger.
func (o *Orchestrator) replay(ctx context.Context, s *session, wager *domain.TransactionRecord) (*Result, error) {
	o.metrics.ObserveReplay(o.adapter.Name())
	o.logger.Info("payout replayed", "play_id", s.player.PlayID, "ext_id", wager.ExtID)

	if wager.BalanceAfter != nil {
		return &Result{Balance: *wager.BalanceAfter, Currency: s.player.Currency, Replayed: true}, nil
	}
	credit, err := o.walletBalance(ctx, s)
	if err != nil {
		return nil, err
	}
	res := o.result(s, credit)
	res.Replayed = true
	return res, nil
}

// Bonus credits a one-shot bonus keyed by round id. Unlike payout, a repeat is
// a conflict, not a replay.
func (o *Orchestrator) Bonus(ctx context.Context, in BonusInput) (_ *Result, err error) {
	defer o.observe("bonus", &err)

	if err := domain.ValidateTxnID(in.RoundID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
		return nil, err
	}

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}

	extID := o.ids.ExtID(domain.TxBonus, 1, in.RoundID)
	existing, err := o.store.FindByExtID(ctx, o.adapter.Name(), extID)
	if err != nil {
		return nil, fmt.Errorf("find bonus: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrTransactionAlreadyExists(extID)
	}

	var credit decimal.Decimal
	err = o.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		settledAt := o.now()
		if _, err := tx.Create(ctx, &domain.TransactionRecord{
			Provider:      o.adapter.Name(),
			ExtID:         extID,
			ProviderTxnID: in.RoundID,
			Kind:          domain.TxBonus,
			PlayerID:      s.player.ID,
			PlayID:        s.player.PlayID,
			Currency:      s.player.Currency,
			GameCode:      in.GameCode,
			RoundID:       in.RoundID,
			WinAmount:     in.Amount,
			SettledAt:     &settledAt,
		}); err != nil {
			return err
		}

		res, err := o.gateway.Bonus(ctx, s.creds, domain.WalletRequest{
			PlayID:   s.player.PlayID,
			Currency: s.player.Currency,
			ExtID:    extID,
			Amount:   s.creds.ToWallet(in.Amount),
			Report:   o.report(s, in.GameCode, in.RoundID, domain.ReportBonus),
		})
		if err != nil || !o.adapter.Succeeded(res) {
			return walletFailure(wallet.OpBonus, res, err)
		}

		credit = res.Credit
		return tx.SetBalanceAfter(ctx, o.adapter.Name(), extID, s.creds.FromWallet(credit))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("bonus committed", "play_id", s.player.PlayID, "ext_id", extID, "amount", in.Amount.String())
	return o.result(s, credit), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
