package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/attaboy/seamless/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, provider, ext_id, provider_txn_id, kind, leg, player_id, play_id, currency,
		       game_code, round_id, bet_amount, win_amount, balance_after, target_ext_id,
		       settled_at, metadata, created_at`

func (r *transactionRepo) FindByExtID(ctx context.Context, db DBTX, provider, extID string) (*domain.TransactionRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM provider_transactions
		WHERE provider = $1 AND ext_id = $2`, provider, extID)
	return scanTransaction(row)
}

func (r *transactionRepo) ListByProviderTxnID(ctx context.Context, db DBTX, provider, providerTxnID string) ([]domain.TransactionRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM provider_transactions
		WHERE provider = $1 AND provider_txn_id = $2
		ORDER BY created_at ASC, leg ASC`, provider, providerTxnID)
	if err != nil {
		return nil, fmt.Errorf("query transaction legs: %w", err)
	}
	defer rows.Close()

	var recs []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, rec *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO provider_transactions
		  (provider, ext_id, provider_txn_id, kind, leg, player_id, play_id, currency,
		   game_code, round_id, bet_amount, win_amount, balance_after, target_ext_id,
		   settled_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+transactionColumns,
		rec.Provider,
		rec.ExtID,
		rec.ProviderTxnID,
		string(rec.Kind),
		legOrDefault(rec.Leg),
		rec.PlayerID,
		rec.PlayID,
		rec.Currency,
		rec.GameCode,
		rec.RoundID,
		infra.DecimalToNumeric(rec.BetAmount),
		infra.DecimalToNumeric(rec.WinAmount),
		infra.NullableDecimalToNumeric(rec.BalanceAfter),
		rec.TargetExtID,
		rec.SettledAt,
		ensureJSON(rec.Metadata),
	)
	out, err := scanTransaction(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrTransactionAlreadyExists(rec.ExtID)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return out, nil
}

// Settle upserts the settlement marker. The insert branch covers providers that
// settle a bet the ledger has not recorded yet. The update branch skips rows that
// are already settled unless params.Resettle is set; a concurrent settle blocks
// on the row lock and then sees the committed marker.
func (r *transactionRepo) Settle(ctx context.Context, db DBTX, params domain.SettleParams) (*domain.TransactionRecord, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO provider_transactions
		  (provider, ext_id, provider_txn_id, kind, leg, player_id, play_id, currency,
		   game_code, round_id, win_amount, settled_at)
		VALUES ($1, $2, $3, 'wager', 1, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider, ext_id) DO UPDATE
		  SET win_amount = EXCLUDED.win_amount,
		      settled_at = EXCLUDED.settled_at
		  WHERE $11::boolean OR provider_transactions.settled_at IS NULL
		RETURNING `+transactionColumns,
		params.Provider,
		params.ExtID,
		params.ProviderTxnID,
		params.PlayerID,
		params.PlayID,
		params.Currency,
		params.GameCode,
		params.RoundID,
		infra.DecimalToNumeric(params.WinAmount),
		params.SettledAt,
		params.Resettle,
	)
	rec, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("settle transaction: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrTransactionAlreadySettled(params.ExtID)
	}
	return rec, nil
}

func (r *transactionRepo) SetBalanceAfter(ctx context.Context, db DBTX, provider, extID string, balance decimal.Decimal) error {
	tag, err := db.Exec(ctx, `
		UPDATE provider_transactions SET balance_after = $3
		WHERE provider = $1 AND ext_id = $2`,
		provider, extID, infra.DecimalToNumeric(balance))
	if err != nil {
		return fmt.Errorf("set balance_after: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound(extID)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var kind string
	var betNum, winNum, balNum pgtype.Numeric
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ExtID, &rec.ProviderTxnID, &kind, &rec.Leg,
		&rec.PlayerID, &rec.PlayID, &rec.Currency, &rec.GameCode, &rec.RoundID,
		&betNum, &winNum, &balNum, &rec.TargetExtID,
		&rec.SettledAt, &rec.Metadata, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Kind = domain.TxKind(kind)

	var convErr error
	if rec.BetAmount, convErr = infra.NumericToDecimal(betNum); convErr != nil {
		return nil, fmt.Errorf("convert bet_amount: %w", convErr)
	}
	if rec.WinAmount, convErr = infra.NumericToDecimal(winNum); convErr != nil {
		return nil, fmt.Errorf("convert win_amount: %w", convErr)
	}
	if rec.BalanceAfter, convErr = infra.NullableNumericToDecimal(balNum); convErr != nil {
		return nil, fmt.Errorf("convert balance_after: %w", convErr)
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func legOrDefault(leg int) int {
	if leg <= 0 {
		return 1
	}
	return leg
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	return data
}
