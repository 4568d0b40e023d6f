package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayout_SettlesOnce(t *testing.T) {
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "T1", "100")
	require.NoError(t, err)

	first, err := h.payout("p1", "T1", "300")
	require.NoError(t, err)
	assert.Equal(t, "1200", first.Balance.String())
	assert.False(t, first.Replayed)

	rec := h.record(t, "wager-T1")
	require.True(t, rec.Settled())
	assert.Equal(t, "300", rec.WinAmount.String())
	assert.Equal(t, "100", rec.BetAmount.String())
	assert.True(t, rec.SettledAt.Equal(h.now))

	calls := h.wallet.Calls(wallet.OpPayout)
	require.Len(t, calls, 1)
	assert.Equal(t, "300", calls[0].Req.Amount.String())
	assert.Equal(t, "payout-T1", calls[0].Req.ExtID)
	assert.Equal(t, "wager-T1", calls[0].Req.TargetExtID)

	// Another credit lands elsewhere; the replay still answers with the recorded balance.
	h.wallet.SetBalance("p1", dec("5000"))
	second, err := h.payout("p1", "T1", "300")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Balance.String(), second.Balance.String())
	assert.Len(t, h.wallet.Calls(wallet.OpPayout), 1)
}

func TestPayout_Failures(t *testing.T) {
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "T1", "100")
	require.NoError(t, err)

	t.Run("unknown wager", func(t *testing.T) {
		_, err := h.payout("p1", "NOPE", "10")
		assert.Equal(t, domain.CodeTransactionNotFound, domain.CodeOf(err))
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := h.payout("p1", "T1", "-1")
		assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	})

	t.Run("declined payout rolls back the marker", func(t *testing.T) {
		h.wallet.Decline(wallet.OpPayout, 2301)
		_, err := h.payout("p1", "T1", "300")
		assert.Equal(t, domain.CodeWalletError, domain.CodeOf(err))
		assert.False(t, h.record(t, "wager-T1").Settled())

		h.wallet.Heal(wallet.OpPayout)
		res, err := h.payout("p1", "T1", "300")
		require.NoError(t, err)
		assert.False(t, res.Replayed)
	})
}

func TestPayout_ConcurrentSettleCallsWalletOnce(t *testing.T) {
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "T1", "100")
	require.NoError(t, err)
	h.wallet.SetDelay(20 * time.Millisecond)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		replayed int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := h.payout("p1", "T1", "300")
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "1200", res.Balance.String())
			if res.Replayed {
				mu.Lock()
				replayed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, callers-1, replayed)
	assert.Len(t, h.wallet.Calls(wallet.OpPayout), 1)
	assert.Equal(t, "1200", h.wallet.BalanceOf("p1").String())
}

func TestPayout_LazySettle(t *testing.T) {
	h := newHarness(t, withLazySettle())
	h.player(t, "p1", "THB", 1000)

	res, err := h.orch.Payout(context.Background(), PayoutInput{
		PlayID: "p1", Proof: proofFor("THB"), TxnID: "S1", RoundID: "R1", GameCode: "match-1", Amount: dec("50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1050", res.Balance.String())

	rec := h.record(t, "wager-S1")
	require.NotNil(t, rec)
	assert.True(t, rec.Settled())
	assert.Equal(t, "50", rec.WinAmount.String())
}

func TestBonus_OneShot(t *testing.T) {
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	bonus := func() (*Result, error) {
		return h.orch.Bonus(context.Background(), BonusInput{
			PlayID: "p1", Proof: proofFor("THB"), RoundID: "T2", GameCode: "slot-1", Amount: dec("25"),
		})
	}

	res, err := bonus()
	require.NoError(t, err)
	assert.Equal(t, "1025", res.Balance.String())
	rec := h.record(t, "bonus-T2")
	require.NotNil(t, rec)
	assert.Equal(t, domain.TxBonus, rec.Kind)

	_, err = bonus()
	assert.Equal(t, domain.CodeTxAlreadyExists, domain.CodeOf(err))

	calls := h.wallet.Calls(wallet.OpBonus)
	require.Len(t, calls, 1)
	assert.Equal(t, domain.ReportBonus, calls[0].Req.Report.Type)
}

func TestBonus_DeclinedLeavesNoRow(t *testing.T) {
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	h.wallet.Decline(wallet.OpBonus, 2400)

	_, err := h.orch.Bonus(context.Background(), BonusInput{PlayID: "p1", Proof: proofFor("THB"), RoundID: "T2", Amount: dec("25")})
	assert.Equal(t, domain.CodeWalletError, domain.CodeOf(err))
	assert.Nil(t, h.record(t, "bonus-T2"))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "T1", "100")
	require.NoError(t, err)
	_, err = h.wager("p1", "T2", "100")
	require.NoError(t, err)
	_, err = h.payout("p1", "T2", "0")
	require.NoError(t, err)

	cancel := func(id string) (*Result, error) {
		return h.orch.Cancel(ctx, CancelInput{PlayID: "p1", Proof: proofFor("THB"), TxnID: id})
	}

	res, err := cancel("T1")
	require.NoError(t, err)
	assert.Equal(t, "900", res.Balance.String())

	leg := h.record(t, "cancel-1-T1")
	require.NotNil(t, leg)
	require.NotNil(t, leg.TargetExtID)
	assert.Equal(t, "wager-T1", *leg.TargetExtID)

	calls := h.wallet.Calls(wallet.OpCancel)
	require.Len(t, calls, 1)
	assert.Equal(t, "wager-T1", calls[0].Req.TargetExtID)

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{"cancel twice", func() error { _, err := cancel("T1"); return err }, domain.CodeTxAlreadyCancelled},
		{"cancel settled", func() error { _, err := cancel("T2"); return err }, domain.CodeTxAlreadySettled},
		{"cancel unknown", func() error { _, err := cancel("T9"); return err }, domain.CodeTransactionNotFound},
		{"payout after cancel", func() error { _, err := h.payout("p1", "T1", "10"); return err }, domain.CodeTxAlreadyCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CodeOf(tt.run()))
		})
	}
	assert.Len(t, h.wallet.Calls(wallet.OpCancel), 1)

	st, err := h.orch.State(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateVoid, st.State)
}

func TestRollback_Batch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	for _, id := range []string{"R1", "R2"} {
		_, err := h.wager("p1", id, "100")
		require.NoError(t, err)
	}
	rollback := func(ids ...string) (*Result, error) {
		return h.orch.Rollback(ctx, RollbackInput{PlayID: "p1", Proof: proofFor("THB"), TxnIDs: ids})
	}

	_, err := rollback("R1", "MISSING", "R2")
	assert.Equal(t, domain.CodeTransactionNotFound, domain.CodeOf(err))
	assert.Empty(t, h.wallet.Calls(wallet.OpCancel), "batch aborted before any reversal")
	assert.Nil(t, h.record(t, "rollback-1-R1"))

	_, err = rollback("R1", "R1")
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	res, err := rollback("R1", "R2")
	require.NoError(t, err)
	assert.Equal(t, "1000", res.Balance.String())
	assert.Len(t, h.wallet.Calls(wallet.OpCancel), 2)

	for _, id := range []string{"R1", "R2"} {
		st, err := h.orch.State(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateRollback, st.State)
	}

	_, err = rollback("R1")
	assert.Equal(t, domain.CodeTxAlreadyCancelled, domain.CodeOf(err))

	_, err = h.orch.Cancel(ctx, CancelInput{PlayID: "p1", Proof: proofFor("THB"), TxnID: "R2"})
	assert.Equal(t, domain.CodeTxAlreadyCancelled, domain.CodeOf(err))
}

func TestRollback_DeclinedKeepsWagerRunning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "R1", "100")
	require.NoError(t, err)
	h.wallet.Decline(wallet.OpCancel, 2600)

	_, err = h.orch.Rollback(ctx, RollbackInput{PlayID: "p1", Proof: proofFor("THB"), TxnIDs: []string{"R1"}})
	assert.Equal(t, domain.CodeWalletError, domain.CodeOf(err))
	assert.Nil(t, h.record(t, "rollback-1-R1"))

	st, err := h.orch.State(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, st.State)
}

func TestResettle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.player(t, "p1", "THB", 1000)
	_, err := h.wager("p1", "T1", "100")
	require.NoError(t, err)

	resettle := func(amount string) (*Result, error) {
		return h.orch.Resettle(ctx, ResettleInput{PlayID: "p1", Proof: proofFor("THB"), TxnID: "T1", Amount: dec(amount)})
	}

	_, err = resettle("50")
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err), "running wager cannot be resettled")

	_, err = h.payout("p1", "T1", "300")
	require.NoError(t, err)

	res, err := resettle("100")
	require.NoError(t, err)
	assert.Equal(t, "1000", res.Balance.String())
	wagers := h.wallet.Calls(wallet.OpWager)
	require.Len(t, wagers, 2)
	assert.Equal(t, "resettle-1-T1", wagers[1].Req.ExtID)
	assert.Equal(t, "200", wagers[1].Req.Amount.String())

	res, err = resettle("400")
	require.NoError(t, err)
	assert.Equal(t, "1300", res.Balance.String())
	payouts := h.wallet.Calls(wallet.OpPayout)
	require.Len(t, payouts, 2)
	assert.Equal(t, "resettle-2-T1", payouts[1].Req.ExtID)

	res, err = resettle("400")
	require.NoError(t, err)
	assert.Equal(t, "1300", res.Balance.String())
	assert.Len(t, h.wallet.Calls(wallet.OpPayout), 2, "zero difference makes no credit")

	wager := h.record(t, "wager-T1")
	assert.Equal(t, "400", wager.WinAmount.String())
	require.NotNil(t, wager.BalanceAfter)
	assert.Equal(t, "1300", wager.BalanceAfter.String())

	st, err := h.orch.State(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, st.State)
	assert.Len(t, st.Legs, 4)
}

func TestMultiLeg_ReopensAfterTerminalState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withLegIDs())
	h.player(t, "p1", "THB", 1000)

	_, err := h.wager("p1", "X", "100")
	require.NoError(t, err)
	assert.NotNil(t, h.record(t, "wager-1-X"))

	_, err = h.wager("p1", "X", "100")
	assert.Equal(t, domain.CodeTxAlreadyExists, domain.CodeOf(err), "open cycle blocks a new leg")

	_, err = h.orch.Rollback(ctx, RollbackInput{PlayID: "p1", Proof: proofFor("THB"), TxnIDs: []string{"X"}})
	require.NoError(t, err)
	assert.NotNil(t, h.record(t, "rollback-1-X"))

	_, err = h.wager("p1", "X", "200")
	require.NoError(t, err)
	assert.NotNil(t, h.record(t, "wager-2-X"))

	st, err := h.orch.State(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, st.State)

	res, err := h.payout("p1", "X", "500")
	require.NoError(t, err)
	assert.Equal(t, "1300", res.Balance.String())
	payouts := h.wallet.Calls(wallet.OpPayout)
	require.Len(t, payouts, 1)
	assert.Equal(t, "payout-2-X", payouts[0].Req.ExtID)

	_, err = h.orch.Cancel(ctx, CancelInput{PlayID: "p1", Proof: proofFor("THB"), TxnID: "X"})
	assert.Equal(t, domain.CodeTxAlreadySettled, domain.CodeOf(err))
}
