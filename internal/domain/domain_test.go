package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		wantErr  bool
	}{
		{"valid THB", "THB", false},
		{"valid USD", "USD", false},
		{"scaled IDR2", "IDR2", false},
		{"lowercase", "thb", true},
		{"too short", "TH", true},
		{"too long", "THBXX", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeValidation, CodeOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateAmounts(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(decimal.NewFromFloat(0.01)))
	assert.Error(t, ValidatePositiveAmount(decimal.Zero))
	assert.Error(t, ValidatePositiveAmount(decimal.NewFromInt(-5)))

	assert.NoError(t, ValidateNonNegativeAmount(decimal.Zero))
	assert.Error(t, ValidateNonNegativeAmount(decimal.NewFromInt(-1)))
}

func TestValidateTxnID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"T1", false},
		{"round-42_b.7", false},
		{"", true},
		{"has space", true},
		{"slash/id", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateTxnID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpsertPlayerParams_Validate(t *testing.T) {
	ok := UpsertPlayerParams{Provider: "aix", PlayID: "p1", Username: "alice", Currency: "THB"}
	require.NoError(t, ok.Validate())

	missing := ok
	missing.Username = " "
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is required")
}

// --- Error Tests ---

func TestAppError_CodeOfThroughWrapping(t *testing.T) {
	base := ErrTransactionAlreadyExists("wager-T1")
	wrapped := fmt.Errorf("create leg: %w", base)

	assert.Equal(t, CodeTxAlreadyExists, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeTxAlreadyExists))
	assert.True(t, errors.Is(wrapped, ErrTransactionAlreadyExists("other")))
	assert.False(t, errors.Is(wrapped, ErrInsufficientFund()))
}

func TestAppError_CodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestAppError_UnwrapCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrWallet("wallet wager failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "WALLET_ERROR")
	assert.Contains(t, err.Error(), "connection reset")
}

// --- Transaction Tests ---

func TestExtID(t *testing.T) {
	assert.Equal(t, "wager-123", ExtID(TxWager, "123"))
	assert.Equal(t, "bonus-R9", ExtID(TxBonus, "R9"))
	assert.Equal(t, "cancel-2-X", LegExtID(TxCancel, 2, "X"))
}

func TestDeriveState(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		legs []TransactionRecord
		want TxState
	}{
		{"no legs", nil, StateNone},
		{"running wager", []TransactionRecord{{Kind: TxWager}}, StateRunning},
		{"settled wager", []TransactionRecord{{Kind: TxWager, SettledAt: &now}}, StateSettled},
		{"cancelled", []TransactionRecord{{Kind: TxWager}, {Kind: TxCancel}}, StateVoid},
		{"rolled back", []TransactionRecord{{Kind: TxWager}, {Kind: TxRollback}}, StateRollback},
		{"resettled", []TransactionRecord{{Kind: TxWager, SettledAt: &now}, {Kind: TxResettle}}, StateSettled},
		{"reopened leg", []TransactionRecord{{Kind: TxWager}, {Kind: TxCancel}, {Kind: TxWager, Leg: 2}}, StateRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.legs))
		})
	}
}

func TestWalletResult_OK(t *testing.T) {
	assert.True(t, WalletResult{StatusCode: 2100}.OK())
	assert.False(t, WalletResult{StatusCode: 2101}.OK())
	assert.False(t, WalletResult{}.OK())
}

func TestOutboxDraftTopic(t *testing.T) {
	rec := &TransactionRecord{Provider: "aix", ExtID: "wager-T1", PlayID: "p1"}
	evt := NewTransactionRecordedEvent(rec)
	assert.Equal(t, "seamless.transaction.recorded", evt.Topic())
	assert.Equal(t, "aix:wager-T1", evt.AggregateID)
	assert.Equal(t, "p1", evt.PartitionKey)
}
