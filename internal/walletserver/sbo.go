package walletserver

import (
	"context"
	"net/http"

	"github.com/attaboy/seamless/internal/provider"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type sboOp func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error)

func (s *server) sboRoutes(r chi.Router, orch *settlement.Orchestrator) {
	r.Post("/GetBalance", s.sboHandler("GetBalance", false, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.BalanceInput, orch.Balance)
	}))
	r.Post("/Deduct", s.sboHandler("Deduct", true, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.WagerInput, orch.Wager)
	}))
	r.Post("/Settle", s.sboHandler("Settle", false, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.PayoutInput, orch.Payout)
	}))
	r.Post("/Cancel", s.sboHandler("Cancel", false, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.CancelInput, orch.Cancel)
	}))
	r.Post("/Rollback", s.sboHandler("Rollback", false, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.RollbackInput, orch.Rollback)
	}))
	r.Post("/Bonus", s.sboHandler("Bonus", false, func(ctx context.Context, req *provider.SBORequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.BonusInput, orch.Bonus)
	}))
}

// sboHandler runs one sbo callback. Deduct echoes the stake as BetAmount.
func (s *server) sboHandler(op string, echoBet bool, run sboOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r, provider.NameSBO); err != nil {
			s.sbo.RespondError(w, "", err)
			return
		}
		req, proof, err := s.sbo.ParseRequest(r)
		if err != nil {
			s.sbo.RespondError(w, "", err)
			return
		}
		res, err := run(r.Context(), req, proof)
		if err != nil {
			s.logFailure(provider.NameSBO, op, err)
			s.sbo.RespondError(w, req.Username, err)
			return
		}
		var bet *decimal.Decimal
		if echoBet {
			bet = &req.Amount
		}
		s.sbo.Respond(w, req.Username, res, bet)
	}
}
