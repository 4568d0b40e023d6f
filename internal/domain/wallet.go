package domain

import (
	"github.com/shopspring/decimal"
)

// WalletStatusSuccess is the only status code the core wallet uses for success.
const WalletStatusSuccess = 2100

// ReportType classifies a wallet call for the core wallet's reporting.
type ReportType string

const (
	ReportSlot       ReportType = "slot"
	ReportArcade     ReportType = "arcade"
	ReportBonus      ReportType = "bonus"
	ReportSportsbook ReportType = "sportsbook"
)

// Report is the descriptor attached to wager, payout and bonus calls.
type Report struct {
	Type     ReportType        `json:"type"`
	Provider string            `json:"provider"`
	GameCode string            `json:"game_code,omitempty"`
	RoundID  string            `json:"round_id,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// WalletRequest is one call to the core wallet. Amounts are in wallet units.
type WalletRequest struct {
	PlayID      string
	Currency    string
	ExtID       string
	Amount      decimal.Decimal
	TargetExtID string
	Report      *Report
}

// WalletResult is the core wallet's answer. Credit is the resulting balance.
type WalletResult struct {
	StatusCode int
	RawStatus  string
	Credit     decimal.Decimal
}

// OK reports whether the call succeeded.
func (r WalletResult) OK() bool {
	return r.StatusCode == WalletStatusSuccess
}
