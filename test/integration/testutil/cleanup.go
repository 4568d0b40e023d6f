//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table the wallet server writes.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx,
		"TRUNCATE provider_transactions, provider_players, event_outbox RESTART IDENTITY CASCADE"); err != nil {
		env.t.Fatalf("clean tables: %v", err)
	}
}
