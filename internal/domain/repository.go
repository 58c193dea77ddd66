package domain

import "context"

// PaymentRepository mediates all durable state for the Payment aggregate.
// Implementations must keep the payment row and its outbox event atomic
// on every write, enforce a unique idempotency_key, and treat terminal
// status as immutable.
type PaymentRepository interface {
	// CreateAtomic inserts a PENDING payment and its payment.created
	// OutboxEvent in one transaction. Returns ErrAlreadyExists if
	// idempotency_key already has a row.
	CreateAtomic(ctx context.Context, p *Payment) error

	// FindByIdempotencyKey returns (nil, ErrNotFound) on miss.
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// FindByID returns (nil, ErrNotFound) on miss.
	FindByID(ctx context.Context, id PaymentID) (*Payment, error)

	// CommitTerminal persists a Payment already transitioned to a terminal
	// status (via Succeed/Fail) together with its terminal OutboxEvent, in
	// one transaction. Implementations must reject the write (no-op,
	// nil error) if the row is no longer PENDING, since a concurrent
	// worker may have already committed a terminal transition.
	CommitTerminal(ctx context.Context, p *Payment, evt OutboxEvent) error
}

// OutboxRepository mediates the publisher's view of the outbox table.
type OutboxRepository interface {
	// DrainBatch selects up to limit unpublished rows ordered by
	// occurred_at ascending, under skip-locked semantics, and invokes fn
	// with each row still inside the same transaction. fn returns true if
	// the event was successfully published and published_at should be
	// stamped; returning false leaves the row untouched for the next
	// drain. The whole batch commits once, at the end.
	DrainBatch(ctx context.Context, limit int, fn func(OutboxEvent) bool) (published int, err error)
}

// ProcessedEventRepository mediates consumer-side dedup (ProcessedEvent).
type ProcessedEventRepository interface {
	// MarkProcessed inserts the event_id under its unique constraint.
	// Returns (false, nil) if the row already existed (duplicate
	// delivery, a no-op for the caller), (true, nil) on first insert.
	MarkProcessed(ctx context.Context, eventID string) (inserted bool, err error)
}

// Gateway is the external payment processor collaborator.
type Gateway interface {
	// Charge attempts to collect amount (minor units) in currency.
	// idempotencyKey lets a real gateway integration dedup retried charges
	// derived from the payment id.
	// Returns ErrGateway (or a wrapped variant) on a retryable failure.
	Charge(ctx context.Context, idempotencyKey string, amount int64, currency string) error
}
