package provider

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/settlement"
)

// AIXSignatureHeader carries the hex HMAC-SHA256 of the raw body.
const AIXSignatureHeader = "X-Signature"

// AIX adapts the aix slot and arcade provider.
type AIX struct {
	settlement.Base
}

// NewAIX creates the aix adapter.
func NewAIX() *AIX {
	return &AIX{Base: settlement.Base{Provider: NameAIX}}
}

// Verify checks the body signature against the currency's private key.
func (a *AIX) Verify(creds *credentials.Credentials, proof settlement.Proof) error {
	if proof.Signature == "" {
		return domain.ErrInvalidSignature()
	}
	expected := hmacSHA256Hex(creds.PrivateKey(), proof.Payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(proof.Signature))) {
		return domain.ErrInvalidSignature()
	}
	return nil
}

// AIXRequest is the body shared by every aix callback. Amounts are decimal strings.
type AIXRequest struct {
	PlayID   string `json:"play_id"`
	Token    string `json:"token,omitempty"`
	TxnID    string `json:"txn_id,omitempty"`
	RoundID  string `json:"round_id,omitempty"`
	GameCode string `json:"game_code,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// AIXResponse is the aix envelope: ok=1 with a balance, or ok=0 with an error.
type AIXResponse struct {
	OK       int    `json:"ok"`
	Balance  string `json:"balance,omitempty"`
	Currency string `json:"currency,omitempty"`
	PlayID   string `json:"play_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ParseRequest decodes an aix callback and captures its signature proof.
func (a *AIX) ParseRequest(r *http.Request) (*AIXRequest, settlement.Proof, error) {
	var req AIXRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		return nil, settlement.Proof{}, err
	}
	return &req, settlement.Proof{Payload: body, Signature: r.Header.Get(AIXSignatureHeader)}, nil
}

func (req *AIXRequest) AuthInput(proof settlement.Proof) (settlement.AuthInput, error) {
	if err := domain.ValidateRequired("token", req.Token); err != nil {
		return settlement.AuthInput{}, err
	}
	return settlement.AuthInput{Token: req.Token, Proof: proof}, nil
}

func (req *AIXRequest) BalanceInput(proof settlement.Proof) (settlement.BalanceInput, error) {
	if err := domain.ValidateRequired("play_id", req.PlayID); err != nil {
		return settlement.BalanceInput{}, err
	}
	return settlement.BalanceInput{PlayID: req.PlayID, Proof: proof}, nil
}

func (req *AIXRequest) WagerInput(proof settlement.Proof) (settlement.WagerInput, error) {
	if err := req.requireTxn(); err != nil {
		return settlement.WagerInput{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return settlement.WagerInput{}, err
	}
	return settlement.WagerInput{
		PlayID: req.PlayID,
		Proof:  proof,
		Legs:   []settlement.WagerLeg{{TxnID: req.TxnID, RoundID: req.RoundID, GameCode: req.GameCode, Amount: amount}},
	}, nil
}

func (req *AIXRequest) PayoutInput(proof settlement.Proof) (settlement.PayoutInput, error) {
	if err := req.requireTxn(); err != nil {
		return settlement.PayoutInput{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return settlement.PayoutInput{}, err
	}
	return settlement.PayoutInput{
		PlayID:   req.PlayID,
		Proof:    proof,
		TxnID:    req.TxnID,
		RoundID:  req.RoundID,
		GameCode: req.GameCode,
		Amount:   amount,
	}, nil
}

// BonusInput keys the bonus by round id, falling back to the txn id.
func (req *AIXRequest) BonusInput(proof settlement.Proof) (settlement.BonusInput, error) {
	if err := domain.ValidateRequired("play_id", req.PlayID); err != nil {
		return settlement.BonusInput{}, err
	}
	round := req.RoundID
	if round == "" {
		round = req.TxnID
	}
	if err := domain.ValidateRequired("round_id", round); err != nil {
		return settlement.BonusInput{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return settlement.BonusInput{}, err
	}
	return settlement.BonusInput{PlayID: req.PlayID, Proof: proof, RoundID: round, GameCode: req.GameCode, Amount: amount}, nil
}

func (req *AIXRequest) CancelInput(proof settlement.Proof) (settlement.CancelInput, error) {
	if err := req.requireTxn(); err != nil {
		return settlement.CancelInput{}, err
	}
	return settlement.CancelInput{PlayID: req.PlayID, Proof: proof, TxnID: req.TxnID}, nil
}

func (req *AIXRequest) ResettleInput(proof settlement.Proof) (settlement.ResettleInput, error) {
	if err := req.requireTxn(); err != nil {
		return settlement.ResettleInput{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return settlement.ResettleInput{}, err
	}
	return settlement.ResettleInput{PlayID: req.PlayID, Proof: proof, TxnID: req.TxnID, Amount: amount}, nil
}

func (req *AIXRequest) requireTxn() error {
	if err := domain.ValidateRequired("play_id", req.PlayID); err != nil {
		return err
	}
	return domain.ValidateRequired("txn_id", req.TxnID)
}

// Respond writes a success envelope.
func (a *AIX) Respond(w http.ResponseWriter, res *settlement.Result) {
	writeJSON(w, http.StatusOK, AIXResponse{OK: 1, Balance: formatAmount(res.Balance), Currency: res.Currency})
}

// RespondAuth writes the authenticate envelope.
func (a *AIX) RespondAuth(w http.ResponseWriter, res *settlement.AuthResult) {
	writeJSON(w, http.StatusOK, AIXResponse{
		OK:       1,
		Balance:  formatAmount(res.Balance),
		Currency: res.Player.Currency,
		PlayID:   res.Player.PlayID,
	})
}

var aixErrors = map[string]string{
	domain.CodeValidation:          "bad_request",
	domain.CodePlayerNotFound:      "player_not_found",
	domain.CodeTransactionNotFound: "transaction_not_found",
	domain.CodeInvalidSignature:    "invalid_signature",
	domain.CodeInvalidKey:          "invalid_key",
	domain.CodeInvalidToken:        "invalid_token",
	domain.CodeTxAlreadyExists:     "duplicate_transaction",
	domain.CodeTxAlreadySettled:    "transaction_settled",
	domain.CodeTxAlreadyCancelled:  "transaction_cancelled",
	domain.CodeInsufficientFund:    "insufficient_funds",
	domain.CodeWalletError:         "wallet_error",
	domain.CodeUnsupportedCurrency: "unsupported_currency",
	domain.CodeRateLimited:         "rate_limited",
}

// AIXError maps a domain code to the aix error string.
func AIXError(code string) string {
	if s, ok := aixErrors[code]; ok {
		return s
	}
	return "internal_error"
}

// RespondError writes a failure envelope. aix expects HTTP 200 for every
// business outcome.
func (a *AIX) RespondError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, AIXResponse{OK: 0, Error: AIXError(domain.CodeOf(err))})
}
