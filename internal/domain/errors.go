package domain

import "errors"

var (
	// ErrNotFound is returned when a Payment lookup misses.
	ErrNotFound = errors.New("payment not found")

	// ErrAlreadyExists is returned when an insert collides on idempotency_key.
	ErrAlreadyExists = errors.New("payment already exists for idempotency key")

	// ErrInvalidTransition guards the PENDING -> terminal state machine.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrMissingIdempotencyKey surfaces as a 400 at the ingress boundary.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrInvalidInput wraps schema violations (bad amount, bad currency,
	// missing user_id); surfaces as a 400 at the ingress boundary.
	ErrInvalidInput = errors.New("invalid request")

	// ErrThrottled surfaces as a 429 at the ingress boundary.
	ErrThrottled = errors.New("rate limit exceeded")

	// ErrLockNotAcquired means another worker currently owns the aggregate lock.
	ErrLockNotAcquired = errors.New("distributed lock not acquired")

	// ErrGateway wraps a retryable failure from the external payment gateway.
	ErrGateway = errors.New("payment gateway error")

	// ErrUnsupportedEventVersion is raised for event types/versions the dispatcher
	// does not recognize; callers should log and acknowledge, never retry.
	ErrUnsupportedEventVersion = errors.New("unsupported event type or version")

	// ErrDuplicateEvent signals a consumer-side dedup hit (no-op, not an error to the caller).
	ErrDuplicateEvent = errors.New("event already processed")
)
