package domain

import (
	"time"

	"github.com/google/uuid"
)

// Player represents a provider_players row. One row exists per (provider, play id).
type Player struct {
	ID        uuid.UUID `json:"id"`
	Provider  string    `json:"provider"`
	PlayID    string    `json:"play_id"`
	Username  string    `json:"username"`
	Currency  string    `json:"currency"`
	Token     *string   `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertPlayerParams creates a player on first launch or refreshes its session token.
type UpsertPlayerParams struct {
	Provider string
	PlayID   string
	Username string
	Currency string
	Token    *string
}

// Validate checks the launch fields.
func (p UpsertPlayerParams) Validate() error {
	if err := ValidateRequired("provider", p.Provider); err != nil {
		return err
	}
	if err := ValidateRequired("play_id", p.PlayID); err != nil {
		return err
	}
	if err := ValidateRequired("username", p.Username); err != nil {
		return err
	}
	return ValidateCurrency(p.Currency)
}
