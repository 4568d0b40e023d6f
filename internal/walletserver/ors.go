package walletserver

import (
	"context"
	"net/http"

	"github.com/attaboy/seamless/internal/provider"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/go-chi/chi/v5"
)

type orsOp func(ctx context.Context, req *provider.ORSRequest, proof settlement.Proof) (*settlement.Result, error)

func (s *server) orsRoutes(r chi.Router, orch *settlement.Orchestrator) {
	r.Post("/player/check", s.orsPlayerCheck(orch))
	r.Post("/balance", s.orsHandler("balance", func(ctx context.Context, req *provider.ORSRequest, proof settlement.Proof) (*settlement.Result, error) {
		return call(ctx, proof, req.BalanceInput, orch.Balance)
	}))
	r.Route("/transaction", func(r chi.Router) {
		r.Post("/debit", s.orsHandler("debit", func(ctx context.Context, req *provider.ORSRequest, proof settlement.Proof) (*settlement.Result, error) {
			return call(ctx, proof, req.WagerInput, orch.Wager)
		}))
		r.Post("/credit", s.orsHandler("credit", func(ctx context.Context, req *provider.ORSRequest, proof settlement.Proof) (*settlement.Result, error) {
			return call(ctx, proof, req.PayoutInput, orch.Payout)
		}))
		r.Post("/rollback", s.orsHandler("rollback", func(ctx context.Context, req *provider.ORSRequest, proof settlement.Proof) (*settlement.Result, error) {
			return call(ctx, proof, req.RollbackInput, orch.Rollback)
		}))
	})
}

func (s *server) orsHandler(op string, run orsOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r, provider.NameORS); err != nil {
			s.ors.RespondError(w, err)
			return
		}
		req, proof, err := s.ors.ParseRequest(r)
		if err != nil {
			s.ors.RespondError(w, err)
			return
		}
		res, err := run(r.Context(), req, proof)
		if err != nil {
			s.logFailure(provider.NameORS, op, err)
			s.ors.RespondError(w, err)
			return
		}
		s.ors.Respond(w, res)
	}
}

// orsPlayerCheck validates the launch token ors presents when a game opens.
func (s *server) orsPlayerCheck(orch *settlement.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r, provider.NameORS); err != nil {
			s.ors.RespondError(w, err)
			return
		}
		req, proof, err := s.ors.ParseRequest(r)
		if err != nil {
			s.ors.RespondError(w, err)
			return
		}
		in, err := req.AuthInput(proof)
		if err != nil {
			s.ors.RespondError(w, err)
			return
		}
		res, err := orch.Authenticate(r.Context(), in)
		if err != nil {
			s.logFailure(provider.NameORS, "player/check", err)
			s.ors.RespondError(w, err)
			return
		}
		s.ors.RespondAuth(w, res)
	}
}
