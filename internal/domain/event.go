package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPlayerLaunched      EventType = "seamless.player.launched"
	EventTransactionRecorded EventType = "seamless.transaction.recorded"
	EventTransactionSettled  EventType = "seamless.transaction.settled"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePlayer      AggregateType = "player"
	AggregateTransaction AggregateType = "transaction"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an OutboxDraft as read back by the relay, with its sequence id.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}

// Topic is the broker subject/topic an event is published on.
func (d OutboxDraft) Topic() string {
	return string(d.EventType)
}
