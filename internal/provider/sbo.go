package provider

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/settlement"
	"github.com/shopspring/decimal"
)

// SBO error codes.
const (
	SBOErrorNone             = 0
	SBOErrorMemberNotExist   = 1
	SBOErrorBadRequest       = 3
	SBOErrorCompanyKey       = 4
	SBOErrorInsufficient     = 5
	SBOErrorBetNotExist      = 6
	SBOErrorInternal         = 7
	SBOErrorAlreadySettled   = 2001
	SBOErrorAlreadyCancelled = 2002
	SBOErrorDuplicate        = 5003
)

// SBO adapts the sbo sportsbook. Settle may arrive for a bet the wallet
// never saw, in which case the wager row is created at settle time.
type SBO struct {
	settlement.Base
}

func NewSBO() *SBO {
	return &SBO{Base: settlement.Base{Provider: NameSBO}}
}

func (s *SBO) SettleWithoutWager() bool { return true }

func (s *SBO) Classify(*credentials.Credentials, string) domain.ReportType {
	return domain.ReportSportsbook
}

// Verify compares the CompanyKey with the currency's private key.
func (s *SBO) Verify(creds *credentials.Credentials, proof settlement.Proof) error {
	if proof.Key == "" || subtle.ConstantTimeCompare([]byte(proof.Key), []byte(creds.PrivateKey())) != 1 {
		return domain.ErrInvalidKey()
	}
	return nil
}

// SBORequest is the body shared by every sbo callback.
type SBORequest struct {
	CompanyKey    string          `json:"CompanyKey"`
	Username      string          `json:"Username"`
	TransferCode  string          `json:"TransferCode"`
	TransactionID string          `json:"TransactionId"`
	Amount        decimal.Decimal `json:"Amount"`
	WinLoss       decimal.Decimal `json:"WinLoss"`
	ProductType   int             `json:"ProductType"`
	GameID        int             `json:"GameId"`
	GameRoundID   string          `json:"GameRoundId"`
	ResultTime    string          `json:"ResultTime"`
}

// SBOResponse is the sbo envelope. Amounts are JSON numbers.
type SBOResponse struct {
	ErrorCode    int         `json:"ErrorCode"`
	ErrorMessage string      `json:"ErrorMessage"`
	AccountName  string      `json:"AccountName,omitempty"`
	Balance      json.Number `json:"Balance"`
	BetAmount    json.Number `json:"BetAmount,omitempty"`
}

func (s *SBO) ParseRequest(r *http.Request) (*SBORequest, settlement.Proof, error) {
	var req SBORequest
	if _, err := decodeBody(r, &req); err != nil {
		return nil, settlement.Proof{}, err
	}
	req.Username = strings.TrimSpace(req.Username)
	req.TransferCode = strings.TrimSpace(req.TransferCode)
	return &req, settlement.Proof{Key: req.CompanyKey}, nil
}

func (req *SBORequest) BalanceInput(proof settlement.Proof) (settlement.BalanceInput, error) {
	if err := domain.ValidateRequired("Username", req.Username); err != nil {
		return settlement.BalanceInput{}, err
	}
	return settlement.BalanceInput{PlayID: req.Username, Proof: proof}, nil
}

func (req *SBORequest) WagerInput(proof settlement.Proof) (settlement.WagerInput, error) {
	if err := req.requireTransfer(); err != nil {
		return settlement.WagerInput{}, err
	}
	return settlement.WagerInput{
		PlayID: req.Username,
		Proof:  proof,
		Legs: []settlement.WagerLeg{{
			TxnID:    req.TransferCode,
			RoundID:  req.round(),
			GameCode: req.gameCode(),
			Amount:   req.Amount,
		}},
	}, nil
}

// PayoutInput settles with WinLoss, the total amount returned to the player.
func (req *SBORequest) PayoutInput(proof settlement.Proof) (settlement.PayoutInput, error) {
	if err := req.requireTransfer(); err != nil {
		return settlement.PayoutInput{}, err
	}
	return settlement.PayoutInput{
		PlayID:    req.Username,
		Proof:     proof,
		TxnID:     req.TransferCode,
		RoundID:   req.round(),
		GameCode:  req.gameCode(),
		Amount:    req.WinLoss,
		SettledAt: parseResultTime(req.ResultTime),
	}, nil
}

func (req *SBORequest) BonusInput(proof settlement.Proof) (settlement.BonusInput, error) {
	if err := req.requireTransfer(); err != nil {
		return settlement.BonusInput{}, err
	}
	return settlement.BonusInput{
		PlayID:   req.Username,
		Proof:    proof,
		RoundID:  req.TransferCode,
		GameCode: req.gameCode(),
		Amount:   req.Amount,
	}, nil
}

func (req *SBORequest) CancelInput(proof settlement.Proof) (settlement.CancelInput, error) {
	if err := req.requireTransfer(); err != nil {
		return settlement.CancelInput{}, err
	}
	return settlement.CancelInput{PlayID: req.Username, Proof: proof, TxnID: req.TransferCode}, nil
}

func (req *SBORequest) RollbackInput(proof settlement.Proof) (settlement.RollbackInput, error) {
	if err := req.requireTransfer(); err != nil {
		return settlement.RollbackInput{}, err
	}
	return settlement.RollbackInput{PlayID: req.Username, Proof: proof, TxnIDs: []string{req.TransferCode}}, nil
}

func (req *SBORequest) requireTransfer() error {
	if err := domain.ValidateRequired("Username", req.Username); err != nil {
		return err
	}
	return domain.ValidateRequired("TransferCode", req.TransferCode)
}

func (req *SBORequest) round() string {
	if req.GameRoundID != "" {
		return req.GameRoundID
	}
	return req.TransactionID
}

func (req *SBORequest) gameCode() string {
	if req.GameID == 0 {
		return ""
	}
	return strconv.Itoa(req.GameID)
}

func parseResultTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Respond writes a success envelope. betAmount is echoed on Deduct.
func (s *SBO) Respond(w http.ResponseWriter, username string, res *settlement.Result, betAmount *decimal.Decimal) {
	resp := SBOResponse{
		ErrorCode:    SBOErrorNone,
		ErrorMessage: "No Error",
		AccountName:  username,
		Balance:      json.Number(formatAmount(res.Balance)),
	}
	if betAmount != nil {
		resp.BetAmount = json.Number(formatAmount(*betAmount))
	}
	writeJSON(w, http.StatusOK, resp)
}

var sboErrors = map[string]struct {
	code int
	msg  string
}{
	domain.CodeValidation:          {SBOErrorBadRequest, "Invalid Request"},
	domain.CodePlayerNotFound:      {SBOErrorMemberNotExist, "Member not exist"},
	domain.CodeTransactionNotFound: {SBOErrorBetNotExist, "Bet not exists"},
	domain.CodeInvalidSignature:    {SBOErrorCompanyKey, "CompanyKey Error"},
	domain.CodeInvalidKey:          {SBOErrorCompanyKey, "CompanyKey Error"},
	domain.CodeInvalidToken:        {SBOErrorCompanyKey, "CompanyKey Error"},
	domain.CodeTxAlreadyExists:     {SBOErrorDuplicate, "Bet With Same RefNo Exists"},
	domain.CodeTxAlreadySettled:    {SBOErrorAlreadySettled, "Bet Already Settled"},
	domain.CodeTxAlreadyCancelled:  {SBOErrorAlreadyCancelled, "Bet Already Canceled"},
	domain.CodeInsufficientFund:    {SBOErrorInsufficient, "Not enough balance"},
}

// SBOErrorCode maps a domain code to the sbo ErrorCode and message.
func SBOErrorCode(code string) (int, string) {
	if e, ok := sboErrors[code]; ok {
		return e.code, e.msg
	}
	return SBOErrorInternal, "Internal Error"
}

func (s *SBO) RespondError(w http.ResponseWriter, username string, err error) {
	code, msg := SBOErrorCode(domain.CodeOf(err))
	writeJSON(w, http.StatusOK, SBOResponse{
		ErrorCode:    code,
		ErrorMessage: msg,
		AccountName:  username,
		Balance:      json.Number("0"),
	})
}
