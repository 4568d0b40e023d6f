//go:build integration

package testutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/attaboy/seamless/internal/wallet/wallettest"
	"github.com/shopspring/decimal"
)

type coreRequest struct {
	PlayID      string          `json:"play_id"`
	Currency    string          `json:"currency"`
	ExtID       string          `json:"ext_id"`
	Amount      decimal.Decimal `json:"amount"`
	TargetExtID string          `json:"target_ext_id"`
	Report      *domain.Report  `json:"report"`
}

// CoreWalletHandler serves the core wallet HTTP API on top of a fake.
func CoreWalletHandler(fake *wallettest.Fake) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body coreRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := domain.WalletRequest{
			PlayID:      body.PlayID,
			Currency:    body.Currency,
			ExtID:       body.ExtID,
			Amount:      body.Amount,
			TargetExtID: body.TargetExtID,
			Report:      body.Report,
		}

		var (
			res domain.WalletResult
			err error
		)
		ctx := r.Context()
		switch strings.TrimPrefix(r.URL.Path, "/wallet/") {
		case wallet.OpBalance:
			res, err = fake.Balance(ctx, nil, body.PlayID)
		case wallet.OpWager:
			res, err = fake.Wager(ctx, nil, req)
		case wallet.OpPayout:
			res, err = fake.Payout(ctx, nil, req)
		case wallet.OpBonus:
			res, err = fake.Bonus(ctx, nil, req)
		case wallet.OpCancel:
			res, err = fake.Cancel(ctx, nil, req)
		default:
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status_code":  res.StatusCode,
			"credit_after": res.Credit.String(),
		})
	})
}
