// Package wallettest provides a scripted in-memory wallet.Gateway.
package wallettest

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/shopspring/decimal"
)

// Status codes the fake answers with besides success.
const (
	StatusInsufficient  = 2104
	StatusTargetMissing = 2107
)

// Call is one recorded gateway invocation.
type Call struct {
	Op       string
	Operator string
	PlayID   string
	Req      domain.WalletRequest
}

type outcome struct {
	status int
	err    error
}

// Fake keeps balances per play id and applies each ext id at most once, the
// way the core wallet does.
type Fake struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	applied  map[string]applied
	calls    []Call
	script   map[string]outcome
	delay    time.Duration
}

type applied struct {
	playID string
	delta  decimal.Decimal
	result domain.WalletResult
}

var _ wallet.Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]applied),
		script:   make(map[string]outcome),
	}
}

// SetBalance seeds a player's wallet balance.
func (f *Fake) SetBalance(playID string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[playID] = amount
}

func (f *Fake) BalanceOf(playID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playID]
}

// Decline makes every following call for op answer with status.
func (f *Fake) Decline(op string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[op] = outcome{status: status}
}

// Fail makes every following call for op return err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[op] = outcome{err: err}
}

// Heal clears scripted outcomes for op.
func (f *Fake) Heal(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.script, op)
}

// SetDelay makes every call sleep first, to widen race windows in tests.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (f *Fake) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Balance(ctx context.Context, creds *credentials.Credentials, playID string) (domain.WalletResult, error) {
	return f.apply(ctx, creds, wallet.OpBalance, domain.WalletRequest{PlayID: playID})
}

func (f *Fake) Wager(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return f.apply(ctx, creds, wallet.OpWager, req)
}

func (f *Fake) Payout(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return f.apply(ctx, creds, wallet.OpPayout, req)
}

func (f *Fake) Bonus(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return f.apply(ctx, creds, wallet.OpBonus, req)
}

func (f *Fake) Cancel(ctx context.Context, creds *credentials.Credentials, req domain.WalletRequest) (domain.WalletResult, error) {
	return f.apply(ctx, creds, wallet.OpCancel, req)
}

func (f *Fake) apply(ctx context.Context, creds *credentials.Credentials, op string, req domain.WalletRequest) (domain.WalletResult, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.WalletResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	operator := ""
	if creds != nil {
		operator = creds.OperatorName()
	}
	f.calls = append(f.calls, Call{Op: op, Operator: operator, PlayID: req.PlayID, Req: req})

	if o, ok := f.script[op]; ok {
		if o.err != nil {
			return domain.WalletResult{}, o.err
		}
		return domain.WalletResult{StatusCode: o.status, Credit: f.balances[req.PlayID]}, nil
	}

	if op == wallet.OpBalance {
		return ok(f.balances[req.PlayID]), nil
	}
	if prev, seen := f.applied[req.ExtID]; seen {
		return prev.result, nil
	}

	playID := req.PlayID
	var delta decimal.Decimal
	switch op {
	case wallet.OpWager:
		if f.balances[req.PlayID].LessThan(req.Amount) {
			return domain.WalletResult{StatusCode: StatusInsufficient, Credit: f.balances[req.PlayID]}, nil
		}
		delta = req.Amount.Neg()
	case wallet.OpPayout, wallet.OpBonus:
		delta = req.Amount
	case wallet.OpCancel:
		target, found := f.applied[req.TargetExtID]
		if !found {
			return domain.WalletResult{StatusCode: StatusTargetMissing, Credit: f.balances[req.PlayID]}, nil
		}
		playID = target.playID
		delta = target.delta.Neg()
	}

	f.balances[playID] = f.balances[playID].Add(delta)
	result := ok(f.balances[playID])
	f.applied[req.ExtID] = applied{playID: playID, delta: delta, result: result}
	return result, nil
}

func ok(credit decimal.Decimal) domain.WalletResult {
	return domain.WalletResult{StatusCode: domain.WalletStatusSuccess, RawStatus: "2100", Credit: credit}
}
