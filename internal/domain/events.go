package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewTransactionRecordedEvent creates the standard event for a new ledger leg.
func NewTransactionRecordedEvent(rec *TransactionRecord) OutboxDraft {
	return newTransactionEvent(EventTransactionRecorded, rec)
}

// NewTransactionSettledEvent creates the event emitted when a wager is settled.
func NewTransactionSettledEvent(rec *TransactionRecord) OutboxDraft {
	return newTransactionEvent(EventTransactionSettled, rec)
}

func newTransactionEvent(evt EventType, rec *TransactionRecord) OutboxDraft {
	payload, _ := json.Marshal(rec)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateTransaction,
		AggregateID:   rec.Provider + ":" + rec.ExtID,
		EventType:     evt,
		PartitionKey:  rec.PlayID,
		Headers:       json.RawMessage(`{"provider":"` + rec.Provider + `"}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewPlayerLaunchedEvent creates a player lifecycle event.
func NewPlayerLaunchedEvent(p *Player) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"player_id": p.ID.String(),
		"provider":  p.Provider,
		"play_id":   p.PlayID,
		"currency":  p.Currency,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePlayer,
		AggregateID:   p.ID.String(),
		EventType:     EventPlayerLaunched,
		PartitionKey:  p.PlayID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
