package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wagerRecord(id string) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		Provider:      "aix",
		ExtID:         domain.ExtID(domain.TxWager, id),
		ProviderTxnID: id,
		Kind:          domain.TxWager,
		PlayID:        "p1",
		Currency:      "THB",
		BetAmount:     decimal.NewFromInt(100),
	}
}

func TestMemoryStore_CommitMakesRowVisible(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("T1"))
		return err
	})
	require.NoError(t, err)

	rec, err := s.FindByExtID(ctx, "aix", "wager-T1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Leg)
	assert.False(t, rec.Settled())
}

func TestMemoryStore_RollbackDiscardsRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("wallet declined")

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Create(ctx, wagerRecord("T1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := s.FindByExtID(ctx, "aix", "wager-T1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The key is free again after rollback.
	err = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("T1"))
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryStore_DuplicateExtIDRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	create := func() error {
		return s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Create(ctx, wagerRecord("T1"))
			return err
		})
	}
	require.NoError(t, create())
	err := create()
	require.Error(t, err)
	assert.Equal(t, domain.CodeTxAlreadyExists, domain.CodeOf(err))
}

func TestMemoryStore_SameProviderTxnDifferentProviders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, provider := range []string{"aix", "ors"} {
		rec := wagerRecord("T1")
		rec.Provider = provider
		err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Create(ctx, rec)
			return err
		})
		require.NoError(t, err, provider)
	}
	assert.Len(t, s.Records(), 2)
}

func TestMemoryStore_ConcurrentCreateExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, dupes int
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.Create(ctx, wagerRecord("RACE")); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if domain.HasCode(err, domain.CodeTxAlreadyExists) {
				dupes++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, dupes)
}

func TestMemoryStore_ReadYourWritesInScope(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("T1"))
		require.NoError(t, err)

		seen, err := tx.FindByExtID(ctx, "aix", "wager-T1")
		require.NoError(t, err)
		assert.NotNil(t, seen)

		outside, err := s.FindByExtID(ctx, "aix", "wager-T1")
		require.NoError(t, err)
		assert.Nil(t, outside, "uncommitted row must not leak")

		legs, err := tx.ListByProviderTxnID(ctx, "aix", "T1")
		require.NoError(t, err)
		assert.Len(t, legs, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_SettleBetUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("T1"))
		return err
	}))

	settledAt := time.Now()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.SettleBet(ctx, domain.SettleParams{
			Provider: "aix", ExtID: "wager-T1", ProviderTxnID: "T1",
			WinAmount: decimal.NewFromInt(300), SettledAt: settledAt,
		})
		require.NoError(t, err)
		assert.True(t, rec.BetAmount.Equal(decimal.NewFromInt(100)))
		return tx.SetBalanceAfter(ctx, "aix", "wager-T1", decimal.NewFromInt(1200))
	}))

	rec, err := s.FindByExtID(ctx, "aix", "wager-T1")
	require.NoError(t, err)
	require.True(t, rec.Settled())
	assert.True(t, rec.WinAmount.Equal(decimal.NewFromInt(300)))
	require.NotNil(t, rec.BalanceAfter)
	assert.True(t, rec.BalanceAfter.Equal(decimal.NewFromInt(1200)))
	assert.Len(t, s.Records(), 1)
}

func TestMemoryStore_SettleBetCreatesMissingRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.SettleBet(ctx, domain.SettleParams{
			Provider: "sbo", ExtID: "wager-S1", ProviderTxnID: "S1", PlayID: "m1",
			Currency: "THB", WinAmount: decimal.NewFromInt(50), SettledAt: time.Now(),
		})
		return err
	}))

	rec, err := s.FindByExtID(ctx, "sbo", "wager-S1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.TxWager, rec.Kind)
	assert.True(t, rec.Settled())
}

func TestMemoryStore_SetBalanceAfterMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetBalanceAfter(ctx, "aix", "wager-none", decimal.Zero)
	})
	assert.Equal(t, domain.CodeTransactionNotFound, domain.CodeOf(err))
}

func TestMemoryStore_OutboxFollowsCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, _ = tx.Create(ctx, wagerRecord("ROLLED"))
		return errors.New("abort")
	})
	rows, err := s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("KEPT"))
		return err
	}))
	rows, err = s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EventTransactionRecorded, rows[0].EventType)

	require.NoError(t, s.MarkPublished(ctx, []int64{rows[0].SeqID}))
	rows, err = s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryStore_UpsertPlayerKeepsCurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	token := "tok-1"

	p1, err := s.UpsertPlayer(ctx, domain.UpsertPlayerParams{Provider: "aix", PlayID: "p1", Username: "alice", Currency: "THB", Token: &token})
	require.NoError(t, err)

	p2, err := s.UpsertPlayer(ctx, domain.UpsertPlayerParams{Provider: "aix", PlayID: "p1", Username: "alice2", Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "THB", p2.Currency)
	assert.Equal(t, "alice2", p2.Username)
	require.NotNil(t, p2.Token)
	assert.Equal(t, "tok-1", *p2.Token)

	missing, err := s.PlayerByPlayID(ctx, "ors", "p1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_SettleBetTwice(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("T1"))
		return err
	}))
	settle := func(win int64, resettle bool) error {
		return s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.SettleBet(ctx, domain.SettleParams{
				Provider: "aix", ExtID: "wager-T1", ProviderTxnID: "T1",
				WinAmount: decimal.NewFromInt(win), SettledAt: time.Now(), Resettle: resettle,
			})
			return err
		})
	}

	require.NoError(t, settle(300, false))

	err := settle(500, false)
	assert.Equal(t, domain.CodeTxAlreadySettled, domain.CodeOf(err))
	rec, err := s.FindByExtID(ctx, "aix", "wager-T1")
	require.NoError(t, err)
	assert.True(t, rec.WinAmount.Equal(decimal.NewFromInt(300)))

	require.NoError(t, settle(500, true))
	rec, err = s.FindByExtID(ctx, "aix", "wager-T1")
	require.NoError(t, err)
	assert.True(t, rec.WinAmount.Equal(decimal.NewFromInt(500)))
}

func TestMemoryStore_SettleBetWaitsForHolder(t *testing.T) {
	params := domain.SettleParams{Provider: "aix", ExtID: "wager-T1", ProviderTxnID: "T1", WinAmount: decimal.NewFromInt(1), SettledAt: time.Now()}
	settle := func(ctx context.Context, s *MemoryStore) error {
		return s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.SettleBet(ctx, params)
			return err
		})
	}

	tests := []struct {
		name       string
		holderErr  error
		wantWaiter string
	}{
		{"holder commits", nil, domain.CodeTxAlreadySettled},
		{"holder rolls back", errors.New("wallet declined"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewMemoryStore()
			require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
				_, err := tx.Create(ctx, wagerRecord("T1"))
				return err
			}))

			holding := make(chan struct{})
			release := make(chan struct{})
			holderDone := make(chan error, 1)
			go func() {
				holderDone <- s.InTx(ctx, func(ctx context.Context, tx Tx) error {
					if _, err := tx.SettleBet(ctx, params); err != nil {
						return err
					}
					close(holding)
					<-release
					return tt.holderErr
				})
			}()
			<-holding

			waiterDone := make(chan error, 1)
			go func() { waiterDone <- settle(ctx, s) }()

			select {
			case err := <-waiterDone:
				t.Fatalf("settle did not wait for the open scope: %v", err)
			case <-time.After(20 * time.Millisecond):
			}

			close(release)
			assert.ErrorIs(t, <-holderDone, tt.holderErr)
			err := <-waiterDone
			if tt.wantWaiter == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantWaiter, domain.CodeOf(err))
			}
		})
	}

	t.Run("waiter gives up with its context", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			_, err := tx.Create(ctx, wagerRecord("T1"))
			return err
		}))

		err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.SettleBet(ctx, params); err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			inner := settle(waitCtx, s)
			assert.ErrorIs(t, inner, context.DeadlineExceeded)
			return errors.New("abort")
		})
		require.Error(t, err)

		// The aborted scope released the row.
		require.NoError(t, settle(context.Background(), s))
	})
}

func TestMemoryStore_PanicReleasesReservations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	func() {
		defer func() { _ = recover() }()
		_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.Create(ctx, wagerRecord("L1")); err != nil {
				return err
			}
			panic("handler bug")
		})
	}()

	rec, err := s.FindByExtID(ctx, "aix", "wager-L1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Create(ctx, wagerRecord("L1"))
		return err
	}))
}

func TestMemoryStore_OneReversalPerLeg(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	reversal := func(kind domain.TxKind) *domain.TransactionRecord {
		target := "wager-T1"
		return &domain.TransactionRecord{
			Provider:      "aix",
			ExtID:         domain.LegExtID(kind, 1, "T1"),
			ProviderTxnID: "T1",
			Kind:          kind,
			Leg:           1,
			TargetExtID:   &target,
		}
	}
	create := func(rec *domain.TransactionRecord) error {
		return s.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.Create(ctx, rec)
			return err
		})
	}

	require.NoError(t, create(reversal(domain.TxCancel)))
	err := create(reversal(domain.TxRollback))
	assert.Equal(t, domain.CodeTxAlreadyExists, domain.CodeOf(err))

	other := reversal(domain.TxRollback)
	other.Leg = 2
	other.ExtID = domain.LegExtID(domain.TxRollback, 2, "T1")
	assert.NoError(t, create(other))
}
