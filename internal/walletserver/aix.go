package walletserver

import (
	"context"
	"net/http"

	"github.com/attaboy/seamless/internal/provider"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/go-chi/chi/v5"
)

type aixOp func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error)

func (s *server) aixRoutes(r chi.Router, orch *settlement.Orchestrator) {
	r.Post("/auth", s.aixAuth(orch))
	r.Post("/balance", s.aixHandler("balance", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.BalanceInput, orch.Balance)
	}))
	r.Post("/debit", s.aixHandler("debit", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.WagerInput, orch.Wager)
	}))
	r.Post("/credit", s.aixHandler("credit", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.PayoutInput, orch.Payout)
	}))
	r.Post("/bonus", s.aixHandler("bonus", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.BonusInput, orch.Bonus)
	}))
	r.Post("/cancel", s.aixHandler("cancel", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.CancelInput, orch.Cancel)
	}))
	r.Post("/resettle", s.aixHandler("resettle", func(ctx context.Context, req *provider.AIXRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.ResettleInput, orch.Resettle)
	}))
}

func (s *server) aixHandler(op string, run aixOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r, provider.NameAIX); err != nil {
			s.aix.RespondError(w, err)
			return
		}
		req, proof, err := s.aix.ParseRequest(r)
		if err != nil {
			s.aix.RespondError(w, err)
			return
		}
		res, err := run(r.Context(), req, proof)
		if err != nil {
			s.logFailure(provider.NameAIX, op, err)
			s.aix.RespondError(w, err)
			return
		}
		s.aix.Respond(w, res)
	}
}

func (s *server) aixAuth(orch *settlement.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r, provider.NameAIX); err != nil {
			s.aix.RespondError(w, err)
			return
		}
		req, proof, err := s.aix.ParseRequest(r)
		if err != nil {
			s.aix.RespondError(w, err)
			return
		}
		in, err := req.AuthInput(proof)
		if err != nil {
			s.aix.RespondError(w, err)
			return
		}
		res, err := orch.Authenticate(r.Context(), in)
		if err != nil {
			s.logFailure(provider.NameAIX, "auth", err)
			s.aix.RespondError(w, err)
			return
		}
		s.aix.RespondAuth(w, res)
	}
}
