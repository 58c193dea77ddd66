package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentID is an opaque 128-bit identifier, backed by a UUID.
type PaymentID struct{ value string }

func NewPaymentID() PaymentID { return PaymentID{value: uuid.New().String()} }

func ParsePaymentID(s string) (PaymentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return PaymentID{}, fmt.Errorf("invalid payment id: %q", s)
	}
	return PaymentID{value: s}, nil
}

func (id PaymentID) String() string { return id.value }
func (id PaymentID) IsZero() bool   { return id.value == "" }

// Money is a positive integer amount in minor currency units plus a 3-letter code.
type Money struct {
	amount   int64
	currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount <= 0 {
		return Money{}, fmt.Errorf("%w: amount must be a positive integer, got %d", ErrInvalidInput, amount)
	}
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return Money{}, fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrInvalidInput, currency)
	}
	return Money{amount: amount, currency: c}, nil
}

func (m Money) Amount() int64    { return m.amount }
func (m Money) Currency() string { return m.currency }
func (m Money) String() string   { return fmt.Sprintf("%d %s", m.amount, m.currency) }

// PaymentStatus is the aggregate's lifecycle state. PENDING is the only
// non-terminal value; SUCCESS and FAILED are terminal.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Payment is the aggregate. It is a plain struct with exported fields; the
// Postgres adapter performs explicit field mapping in both directions.
type Payment struct {
	ID             PaymentID
	UserID         string
	Amount         Money
	Status         PaymentStatus
	IdempotencyKey string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// New constructs a fresh PENDING Payment. CreatedAt is set once here and
// is immutable thereafter.
func New(userID string, amount Money, idempotencyKey string) (*Payment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, ErrMissingIdempotencyKey
	}

	return &Payment{
		ID:             NewPaymentID(),
		UserID:         userID,
		Amount:         amount,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Succeed transitions PENDING -> SUCCESS, stamping ProcessedAt exactly once.
func (p *Payment) Succeed(at time.Time) error {
	return p.transitionTo(StatusSuccess, at)
}

// Fail transitions PENDING -> FAILED, stamping ProcessedAt exactly once.
func (p *Payment) Fail(at time.Time) error {
	return p.transitionTo(StatusFailed, at)
}

func (p *Payment) transitionTo(next PaymentStatus, at time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	p.Status = next
	processedAt := at.UTC()
	p.ProcessedAt = &processedAt
	return nil
}

// CreatedEvent builds the payment.created OutboxEvent emitted atomically
// with the Payment insert.
func (p *Payment) CreatedEvent() OutboxEvent {
	return newOutboxEvent(p.ID, EventPaymentCreated, p.CreatedAt, map[string]any{
		"payment_id": p.ID.String(),
		"user_id":    p.UserID,
		"amount":     p.Amount.Amount(),
		"currency":   p.Amount.Currency(),
	})
}

// TerminalEvent builds the payment.success/payment.failed OutboxEvent
// emitted atomically with the terminal state transition. Must be called
// only after Succeed/Fail has set ProcessedAt.
func (p *Payment) TerminalEvent() (OutboxEvent, error) {
	if p.ProcessedAt == nil {
		return OutboxEvent{}, fmt.Errorf("payment %s has no processed_at: not yet terminal", p.ID)
	}

	var eventType string
	switch p.Status {
	case StatusSuccess:
		eventType = EventPaymentSuccess
	case StatusFailed:
		eventType = EventPaymentFailed
	default:
		return OutboxEvent{}, ErrInvalidTransition
	}

	return newOutboxEvent(p.ID, eventType, *p.ProcessedAt, map[string]any{
		"payment_id":  p.ID.String(),
		"user_id":     p.UserID,
		"amount":      p.Amount.Amount(),
		"currency":    p.Amount.Currency(),
		"occurred_at": p.ProcessedAt.Format(time.RFC3339Nano),
	}), nil
}
