package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/jackc/pgx/v5"
)

type playerRepo struct{}

// NewPlayerRepository returns a pgx-backed PlayerRepository.
func NewPlayerRepository() PlayerRepository {
	return &playerRepo{}
}

const playerColumns = `id, provider, play_id, username, currency, token, created_at, updated_at`

func (r *playerRepo) FindByPlayID(ctx context.Context, db DBTX, provider, playID string) (*domain.Player, error) {
	row := db.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM provider_players WHERE provider = $1 AND play_id = $2`, provider, playID)
	return scanPlayer(row)
}

func (r *playerRepo) Upsert(ctx context.Context, db DBTX, params domain.UpsertPlayerParams) (*domain.Player, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO provider_players (provider, play_id, username, currency, token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, play_id) DO UPDATE
		  SET username = EXCLUDED.username,
		      token = COALESCE(EXCLUDED.token, provider_players.token),
		      updated_at = now()
		RETURNING `+playerColumns,
		params.Provider, params.PlayID, params.Username, params.Currency, params.Token)
	p, err := scanPlayer(row)
	if err != nil {
		return nil, fmt.Errorf("upsert player: %w", err)
	}
	return p, nil
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.Provider, &p.PlayID, &p.Username, &p.Currency, &p.Token, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}
	return &p, nil
}
