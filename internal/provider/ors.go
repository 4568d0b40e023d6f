package provider

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/shopspring/decimal"
)

// ORSPublicKeyHeader must carry the operator's public key for the player's currency.
const ORSPublicKeyHeader = "public_key"

// ORS status codes.
const (
	ORSStatusOK                  = 200
	ORSStatusPlayerNotFound      = 1001
	ORSStatusBadRequest          = 1002
	ORSStatusInvalidSignature    = 1003
	ORSStatusInvalidKey          = 1004
	ORSStatusInsufficientFund    = 1005
	ORSStatusDuplicate           = 1006
	ORSStatusNotFound            = 1007
	ORSStatusWalletError         = 1008
	ORSStatusAlreadySettled      = 1009
	ORSStatusAlreadyCancelled    = 1010
	ORSStatusInvalidToken        = 1011
	ORSStatusUnsupportedCurrency = 1012
	ORSStatusRateLimited         = 1013
	ORSStatusInternal            = 1099
)

// ORS adapts the ors batch provider. Every wager cycle on a transaction id
// gets its own leg number, so a rolled back id can be bet again.
type ORS struct {
	settlement.Base
}

func NewORS() *ORS {
	return &ORS{Base: settlement.Base{Provider: NameORS}}
}

func (o *ORS) IDs() settlement.IDStrategy { return settlement.LegIDs{} }

// Verify checks the public key header, then the MD5 signature over the
// sorted body fields followed by the private key.
func (o *ORS) Verify(creds *credentials.Credentials, proof settlement.Proof) error {
	if subtle.ConstantTimeCompare([]byte(proof.Key), []byte(creds.PublicKey())) != 1 {
		return domain.ErrInvalidKey()
	}
	if proof.Signature == "" {
		return domain.ErrInvalidSignature()
	}
	expected := ORSSign(proof.Fields, creds.PrivateKey())
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(proof.Signature))) != 1 {
		return domain.ErrInvalidSignature()
	}
	return nil
}

// ORSSign computes the ors signature for a set of body fields.
func ORSSign(fields map[string]string, privateKey string) string {
	return md5Hex(signingString(fields, "signature") + privateKey)
}

// ORSRecord is one entry of a batch debit or rollback.
type ORSRecord struct {
	TransactionID string          `json:"transaction_id"`
	RoundID       string          `json:"round_id,omitempty"`
	GameID        string          `json:"game_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
}

// ORSRequest is the body shared by every ors callback.
type ORSRequest struct {
	PlayerID      string          `json:"player_id"`
	Token         string          `json:"token,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	RoundID       string          `json:"round_id,omitempty"`
	GameID        string          `json:"game_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Records       []ORSRecord     `json:"records,omitempty"`
	Signature     string          `json:"signature"`
}

// ORSResponse is the ors envelope.
type ORSResponse struct {
	Status   int    `json:"status"`
	Balance  string `json:"balance,omitempty"`
	Currency string `json:"currency,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ParseRequest decodes an ors callback and collects the signed fields.
func (o *ORS) ParseRequest(r *http.Request) (*ORSRequest, settlement.Proof, error) {
	var req ORSRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		return nil, settlement.Proof{}, err
	}
	fields, err := flattenFields(body)
	if err != nil {
		return nil, settlement.Proof{}, domain.ErrValidation("body must be a JSON object")
	}
	return &req, settlement.Proof{
		Fields:    fields,
		Signature: req.Signature,
		Key:       r.Header.Get(ORSPublicKeyHeader),
	}, nil
}

func (req *ORSRequest) AuthInput(proof settlement.Proof) (settlement.AuthInput, error) {
	if err := domain.ValidateRequired("token", req.Token); err != nil {
		return settlement.AuthInput{}, err
	}
	return settlement.AuthInput{Token: req.Token, Proof: proof}, nil
}

func (req *ORSRequest) BalanceInput(proof settlement.Proof) (settlement.BalanceInput, error) {
	if err := domain.ValidateRequired("player_id", req.PlayerID); err != nil {
		return settlement.BalanceInput{}, err
	}
	return settlement.BalanceInput{PlayID: req.PlayerID, Proof: proof}, nil
}

// WagerInput turns the records of a batch debit into wager legs.
func (req *ORSRequest) WagerInput(proof settlement.Proof) (settlement.WagerInput, error) {
	if err := domain.ValidateRequired("player_id", req.PlayerID); err != nil {
		return settlement.WagerInput{}, err
	}
	if len(req.Records) == 0 {
		return settlement.WagerInput{}, domain.ErrValidation("records are required")
	}
	legs := make([]settlement.WagerLeg, 0, len(req.Records))
	for i, rec := range req.Records {
		if err := domain.ValidateRequired(fmt.Sprintf("records[%d].transaction_id", i), rec.TransactionID); err != nil {
			return settlement.WagerInput{}, err
		}
		legs = append(legs, settlement.WagerLeg{
			TxnID:    rec.TransactionID,
			RoundID:  rec.RoundID,
			GameCode: rec.GameID,
			Amount:   rec.Amount,
		})
	}
	return settlement.WagerInput{PlayID: req.PlayerID, Proof: proof, Legs: legs}, nil
}

func (req *ORSRequest) PayoutInput(proof settlement.Proof) (settlement.PayoutInput, error) {
	if err := domain.ValidateRequired("player_id", req.PlayerID); err != nil {
		return settlement.PayoutInput{}, err
	}
	if err := domain.ValidateRequired("transaction_id", req.TransactionID); err != nil {
		return settlement.PayoutInput{}, err
	}
	return settlement.PayoutInput{
		PlayID:   req.PlayerID,
		Proof:    proof,
		TxnID:    req.TransactionID,
		RoundID:  req.RoundID,
		GameCode: req.GameID,
		Amount:   req.Amount,
	}, nil
}

// RollbackInput accepts either a records batch or a single transaction_id.
func (req *ORSRequest) RollbackInput(proof settlement.Proof) (settlement.RollbackInput, error) {
	if err := domain.ValidateRequired("player_id", req.PlayerID); err != nil {
		return settlement.RollbackInput{}, err
	}
	var ids []string
	for i, rec := range req.Records {
		if err := domain.ValidateRequired(fmt.Sprintf("records[%d].transaction_id", i), rec.TransactionID); err != nil {
			return settlement.RollbackInput{}, err
		}
		ids = append(ids, rec.TransactionID)
	}
	if len(ids) == 0 && req.TransactionID != "" {
		ids = []string{req.TransactionID}
	}
	if len(ids) == 0 {
		return settlement.RollbackInput{}, domain.ErrValidation("records are required")
	}
	return settlement.RollbackInput{PlayID: req.PlayerID, Proof: proof, TxnIDs: ids}, nil
}

func (o *ORS) Respond(w http.ResponseWriter, res *settlement.Result) {
	writeJSON(w, http.StatusOK, ORSResponse{Status: ORSStatusOK, Balance: formatAmount(res.Balance), Currency: res.Currency})
}

func (o *ORS) RespondAuth(w http.ResponseWriter, res *settlement.AuthResult) {
	writeJSON(w, http.StatusOK, ORSResponse{
		Status:   ORSStatusOK,
		Balance:  formatAmount(res.Balance),
		Currency: res.Player.Currency,
		PlayerID: res.Player.PlayID,
	})
}

var orsStatuses = map[string]int{
	domain.CodeValidation:          ORSStatusBadRequest,
	domain.CodePlayerNotFound:      ORSStatusPlayerNotFound,
	domain.CodeTransactionNotFound: ORSStatusNotFound,
	domain.CodeInvalidSignature:    ORSStatusInvalidSignature,
	domain.CodeInvalidKey:          ORSStatusInvalidKey,
	domain.CodeInvalidToken:        ORSStatusInvalidToken,
	domain.CodeTxAlreadyExists:     ORSStatusDuplicate,
	domain.CodeTxAlreadySettled:    ORSStatusAlreadySettled,
	domain.CodeTxAlreadyCancelled:  ORSStatusAlreadyCancelled,
	domain.CodeInsufficientFund:    ORSStatusInsufficientFund,
	domain.CodeWalletError:         ORSStatusWalletError,
	domain.CodeUnsupportedCurrency: ORSStatusUnsupportedCurrency,
	domain.CodeRateLimited:         ORSStatusRateLimited,
}

// ORSStatus maps a domain code to the ors status code.
func ORSStatus(code string) int {
	if s, ok := orsStatuses[code]; ok {
		return s
	}
	return ORSStatusInternal
}

func (o *ORS) RespondError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	writeJSON(w, http.StatusOK, ORSResponse{Status: ORSStatus(code), Message: code})
}
