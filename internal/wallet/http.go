package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/guard"
	"github.com/attaboy/seamless/internal/metrics"
	"github.com/shopspring/decimal"
)

const maxResponseBytes = 1 << 20

// HTTPGateway calls the core wallet over JSON/HTTP at the credentials' API URL.
type HTTPGateway struct {
	client  *http.Client
	breaker *guard.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway. breaker and m may be nil.
func NewHTTPGateway(timeout time.Duration, breaker *guard.CircuitBreaker, m *metrics.Metrics, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

type callBody struct {
	PlayID      string         `json:"play_id"`
	Currency    string         `json:"currency,omitempty"`
	ExtID       string         `json:"ext_id,omitempty"`
	Amount      *string        `json:"amount,omitempty"`
	TargetExtID string         `json:"target_ext_id,omitempty"`
	Report      *domain.Report `json:"report,omitempty"`
}

type callResponse struct {
	StatusCode  json.RawMessage  `json:"status_code"`
	Credit      *decimal.Decimal `json:"credit"`
	CreditAfter *decimal.Decimal `json:"credit_after"`
}

func (g *HTTPGateway) Balance(ctx context.Context, creds *credentials.Credentials, playID string) (domain.WalletResult, error) {
	return g.call(ctx, creds, OpBalance, callBody{PlayID: playID})
}

func (g *HTTPGateway) Wager(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return g.call(ctx, creds, OpWager, bodyFor(req))
}

func (g *HTTPGateway) Payout(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return g.call(ctx, creds, OpPayout, bodyFor(req))
}

func (g *HTTPGateway) Bonus(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return g.call(ctx, creds, OpBonus, bodyFor(req))
}

func (g *HTTPGateway) Cancel(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return g.call(ctx, creds, OpCancel, bodyFor(req))
}

func bodyFor(req domain.WalletRequest) callBody {
	amount := req.Amount.StringFixed(4)
	return callBody{
		PlayID:      req.PlayID,
		Currency:    req.Currency,
		ExtID:       req.ExtID,
		Amount:      &amount,
		TargetExtID: req.TargetExtID,
		Report:      req.Report,
	}
}

func (g *HTTPGateway) call(ctx context.Context, creds *credentials.Credentials, op string, body callBody) (domain.WalletResult, error) {
	key := creds.OperatorName()
	if g.breaker != nil {
		if res := g.breaker.Check(ctx, key); !res.Allowed {
			g.metrics.ObserveBreakerRejected(key)
			return domain.WalletResult{}, domain.ErrWallet(res.Reason, nil)
		}
	}

	start := time.Now()
	result, err := g.do(ctx, creds, op, body)
	took := time.Since(start)

	switch {
	case err != nil:
		if g.breaker != nil {
			g.breaker.RecordFailure(key)
		}
		g.metrics.ObserveWalletCall(op, "error", took)
		g.logger.Warn("wallet call failed", "op", op, "operator", key, "ext_id", body.ExtID, "error", err)
		return domain.WalletResult{}, domain.ErrWallet(op+" failed", err)
	case !result.OK():
		if g.breaker != nil {
			g.breaker.RecordSuccess(key)
		}
		g.metrics.ObserveWalletCall(op, "declined", took)
		g.logger.Info("wallet call declined", "op", op, "operator", key, "ext_id", body.ExtID, "status", result.RawStatus)
	default:
		if g.breaker != nil {
			g.breaker.RecordSuccess(key)
		}
		g.metrics.ObserveWalletCall(op, "ok", took)
	}
	return result, nil
}

func (g *HTTPGateway) do(ctx context.Context, creds *credentials.Credentials, op string, body callBody) (domain.WalletResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.WalletResult{}, fmt.Errorf("encode request: %w", err)
	}

	url := creds.APIURL() + "/wallet/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.WalletResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator", creds.OperatorName())
	req.Header.Set("X-Operator-Key", creds.PrivateKey())

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.WalletResult{}, fmt.Errorf("wallet call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return domain.WalletResult{}, fmt.Errorf("wallet returned http %d", resp.StatusCode)
	}

	var decoded callResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return domain.WalletResult{}, fmt.Errorf("decode response: %w", err)
	}

	result := domain.WalletResult{}
	result.StatusCode, result.RawStatus = ParseStatus(decoded.StatusCode)
	switch {
	case decoded.CreditAfter != nil:
		result.Credit = *decoded.CreditAfter
	case decoded.Credit != nil:
		result.Credit = *decoded.Credit
	}
	return result, nil
}

// ParseStatus reads a status_code that may be a JSON number or string. Only a
// JSON integer yields a non-zero code; strings, floats and missing values keep
// their raw text with code 0 so they never compare equal to success.
func ParseStatus(raw json.RawMessage) (int, string) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, ""
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, text
		}
		return 0, s
	}
	code, err := strconv.Atoi(text)
	if err != nil {
		return 0, text
	}
	return code, text
}
