package walletserver

import (
	"net/http"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/handler"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/go-chi/chi/v5"
)

type launchRequest struct {
	PlayID   string `json:"play_id"`
	Username string `json:"username"`
	Currency string `json:"currency"`
}

type launchResponse struct {
	PlayID   string `json:"play_id"`
	Currency string `json:"currency"`
	Token    string `json:"token"`
}

type stateResponse struct {
	ProviderTxnID string                     `json:"provider_txn_id"`
	State         domain.TxState             `json:"state"`
	Legs          []domain.TransactionRecord `json:"legs"`
}

func (s *server) orchestrator(r *http.Request) (*settlement.Orchestrator, error) {
	name := chi.URLParam(r, "provider")
	orch := s.orchestrators[name]
	if orch == nil {
		return nil, &domain.AppError{Code: domain.CodeValidation, Message: "unknown provider " + name, Status: http.StatusNotFound}
	}
	return orch, nil
}

// launch registers the player with the provider and hands back a launch token.
func (s *server) launch(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	var req launchRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid JSON body"))
		return
	}
	res, err := orch.Launch(r.Context(), settlement.LaunchInput{
		PlayID:   req.PlayID,
		Username: req.Username,
		Currency: req.Currency,
	})
	if err != nil {
		s.logFailure(orch.Provider(), "launch", err)
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, launchResponse{
		PlayID:   res.Player.PlayID,
		Currency: res.Player.Currency,
		Token:    res.Token,
	})
}

func (s *server) transactionState(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	txnID := chi.URLParam(r, "txnID")
	res, err := orch.State(r.Context(), txnID)
	if err != nil {
		s.logFailure(orch.Provider(), "state", err)
		handler.RespondError(w, err)
		return
	}
	if len(res.Legs) == 0 {
		handler.RespondError(w, domain.ErrTransactionNotFound(txnID))
		return
	}
	handler.RespondJSON(w, http.StatusOK, stateResponse{ProviderTxnID: txnID, State: res.State, Legs: res.Legs})
}
