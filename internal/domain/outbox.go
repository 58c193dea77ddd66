package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recognized event types. event_type is a bare string; version is tracked
// as a separate integer field rather than an embedded suffix.
const (
	EventPaymentCreated = "payment.created"
	EventPaymentSuccess = "payment.success"
	EventPaymentFailed  = "payment.failed"

	CurrentEventVersion = 1
)

// OutboxEvent is the durable event record. Rows are created by the
// ingress/worker write paths and mutated only by the publisher to stamp
// PublishedAt.
type OutboxEvent struct {
	ID          int64 // row identifier, assigned by the store
	EventID     string
	AggregateID PaymentID
	EventType   string
	Version     int
	Payload     map[string]any
	OccurredAt  time.Time
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func newOutboxEvent(aggregateID PaymentID, eventType string, occurredAt time.Time, payload map[string]any) OutboxEvent {
	return OutboxEvent{
		EventID:     uuid.New().String(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Version:     CurrentEventVersion,
		Payload:     payload,
		OccurredAt:  occurredAt.UTC(),
	}
}

// Envelope is the wire format published to the bus and consumed by the
// dispatcher.
type Envelope struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	AggregateID string         `json:"aggregate_id"`
	Version     int            `json:"version"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload"`
}

// ToEnvelope builds the wire envelope for a stored OutboxEvent. Returns
// false if the payload fails the hard payment_id contract check — callers
// must not publish an envelope built from a failed conversion.
func (e OutboxEvent) ToEnvelope() (Envelope, bool) {
	if _, ok := e.Payload["payment_id"]; !ok {
		return Envelope{}, false
	}
	return Envelope{
		EventID:     e.EventID,
		EventType:   e.EventType,
		AggregateID: e.AggregateID.String(),
		Version:     e.Version,
		OccurredAt:  e.OccurredAt,
		Payload:     e.Payload,
	}, true
}

// ProcessedEvent is the consumer-side dedup marker (primary key = EventID).
type ProcessedEvent struct {
	EventID     string
	ProcessedAt time.Time
}
