// Package settlement runs the seamless-wallet protocol shared by every provider:
// resolve the player and credentials, verify the caller, check idempotency,
// then pair each ledger leg with its core wallet call inside one scoped
// transaction.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/seamless/internal/auth"
	"github.com/attaboy/seamless/internal/credentials"
	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/ledger"
	"github.com/attaboy/seamless/internal/metrics"
	"github.com/attaboy/seamless/internal/wallet"
	"github.com/shopspring/decimal"
)

// Deps are the orchestrator's collaborators. Metrics and Clock are optional.
type Deps struct {
	Store    ledger.Store
	Gateway  wallet.Gateway
	Resolver *credentials.Resolver
	Adapter  Adapter
	Tokens   *auth.JWTManager
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Orchestrator executes settlement operations for one provider. It holds no
// per-request state; concurrent calls coordinate only through the ledger.
type Orchestrator struct {
	store    ledger.Store
	gateway  wallet.Gateway
	resolver *credentials.Resolver
	adapter  Adapter
	ids      IDStrategy
	tokens   *auth.JWTManager
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    d.Store,
		gateway:  d.Gateway,
		resolver: d.Resolver,
		adapter:  d.Adapter,
		ids:      d.Adapter.IDs(),
		tokens:   d.Tokens,
		metrics:  d.Metrics,
		logger:   logger.With("provider", d.Adapter.Name()),
		now:      now,
	}
}

// Provider returns the adapter's provider key.
func (o *Orchestrator) Provider() string { return o.adapter.Name() }

// session is the outcome of the common preamble.
type session struct {
	player *domain.Player
	creds  *credentials.Credentials
}

// preamble resolves the player, then credentials by the player's currency,
// then verifies the caller against those credentials.
func (o *Orchestrator) preamble(ctx context.Context, playID string, proof Proof) (*session, error) {
	if err := domain.ValidateRequired("play_id", playID); err != nil {
		return nil, err
	}

	player, err := o.store.PlayerByPlayID(ctx, o.adapter.Name(), playID)
	if err != nil {
		return nil, err
	}
	if player == nil {
		return nil, domain.ErrPlayerNotFound(playID)
	}

	creds, err := o.resolver.ByCurrency(player.Currency)
	if err != nil {
		return nil, err
	}

	if err := o.adapter.Verify(creds, proof); err != nil {
		return nil, err
	}
	return &session{player: player, creds: creds}, nil
}

// Launch creates or refreshes the player and issues a launch token.
func (o *Orchestrator) Launch(ctx context.Context, in LaunchInput) (_ *LaunchResult, err error) {
	defer o.observe("launch", &err)

	params := domain.UpsertPlayerParams{
		Provider: o.adapter.Name(),
		PlayID:   in.PlayID,
		Username: in.Username,
		Currency: in.Currency,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if _, err := o.resolver.ByCurrency(in.Currency); err != nil {
		return nil, err
	}

	existing, err := o.store.PlayerByPlayID(ctx, params.Provider, params.PlayID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Currency != in.Currency {
		return nil, domain.ErrValidation(fmt.Sprintf("player %s is registered in %s", in.PlayID, existing.Currency))
	}

	token, err := o.tokens.GenerateToken(params.Provider, params.PlayID, params.Currency)
	if err != nil {
		return nil, domain.ErrInternal("issue launch token", err)
	}
	params.Token = &token

	player, err := o.store.UpsertPlayer(ctx, params)
	if err != nil {
		return nil, err
	}
	o.logger.Info("player launched", "play_id", player.PlayID, "currency", player.Currency)
	return &LaunchResult{Player: player, Token: token}, nil
}

// Authenticate validates a launch token, runs the preamble and returns the
// player with a fresh balance.
func (o *Orchestrator) Authenticate(ctx context.Context, in AuthInput) (_ *AuthResult, err error) {
	defer o.observe("authenticate", &err)

	claims, err := o.tokens.ValidateTokenForProvider(in.Token, o.adapter.Name())
	if err != nil {
		return nil, domain.ErrInvalidToken(err)
	}

	s, err := o.preamble(ctx, claims.Subject, in.Proof)
	if err != nil {
		return nil, err
	}
	if s.player.Token != nil && *s.player.Token != in.Token {
		return nil, domain.ErrInvalidToken(fmt.Errorf("token superseded by a later launch"))
	}

	balance, err := o.walletBalance(ctx, s)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Player: s.player, Balance: s.creds.FromWallet(balance)}, nil
}

// Balance returns the player's wallet balance in provider units.
func (o *Orchestrator) Balance(ctx context.Context, in BalanceInput) (_ *Result, err error) {
	defer o.observe("balance", &err)

	s, err := o.preamble(ctx, in.PlayID, in.Proof)
	if err != nil {
		return nil, err
	}
	balance, err := o.walletBalance(ctx, s)
	if err != nil {
		return nil, err
	}
	return o.result(s, balance), nil
}

// State folds the leg history of a provider transaction id.
func (o *Orchestrator) State(ctx context.Context, providerTxnID string) (*StateResult, error) {
	legs, err := o.store.ListByProviderTxnID(ctx, o.adapter.Name(), providerTxnID)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	return &StateResult{State: domain.DeriveState(legs), Legs: legs}, nil
}

// walletBalance returns the raw wallet credit in wallet units.
func (o *Orchestrator) walletBalance(ctx context.Context, s *session) (decimal.Decimal, error) {
	res, err := o.gateway.Balance(ctx, s.creds, s.player.PlayID)
	if err != nil || !o.adapter.Succeeded(res) {
		return decimal.Zero, walletFailure(wallet.OpBalance, res, err)
	}
	return res.Credit, nil
}

func (o *Orchestrator) result(s *session, walletCredit decimal.Decimal) *Result {
	return &Result{Balance: s.creds.FromWallet(walletCredit), Currency: s.player.Currency}
}

func (o *Orchestrator) report(s *session, gameCode, roundID string, kind domain.ReportType) *domain.Report {
	if kind == "" {
		kind = o.adapter.Classify(s.creds, gameCode)
	}
	return &domain.Report{
		Type:     kind,
		Provider: o.adapter.Name(),
		GameCode: gameCode,
		RoundID:  roundID,
	}
}

// walletFailure turns a transport error or a declined status into WalletError.
func walletFailure(op string, res domain.WalletResult, err error) error {
	if err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return err
		}
		return domain.ErrWallet(op+" failed", err)
	}
	return domain.ErrWallet(fmt.Sprintf("%s declined with status %q", op, res.RawStatus), nil)
}

func (o *Orchestrator) observe(op string, errp *error) {
	code := "OK"
	if *errp != nil {
		code = domain.CodeOf(*errp)
		level := slog.LevelInfo
		if code == domain.CodeInternal || code == domain.CodeWalletError {
			level = slog.LevelWarn
		}
		o.logger.Log(context.Background(), level, "settlement operation failed", "op", op, "code", code, "error", *errp)
	}
	o.metrics.ObserveSettlement(o.adapter.Name(), op, code)
}
