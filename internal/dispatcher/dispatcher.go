// Package dispatcher implements the consumer dispatcher. It parses bus
// deliveries, validates them against the envelope schema, routes by
// (event_type, version), and hands terminal events to a notification
// handler deduplicated on event_id.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quietloop/payflow/internal/domain"
)

// PaymentProcessor is the subset of worker.Processor the dispatcher depends on.
type PaymentProcessor interface {
	Process(ctx context.Context, paymentID domain.PaymentID) error
}

// Notifier sends a single user-facing notification. Implementations should
// not block longer than the dispatch budget; Dispatch fans out email+SMS
// concurrently and waits for both.
type Notifier interface {
	SendEmail(ctx context.Context, userID, message string) error
	SendSMS(ctx context.Context, userID, message string) error
}

type Dispatcher struct {
	worker    PaymentProcessor
	processed domain.ProcessedEventRepository
	notifier  Notifier
	log       *slog.Logger
}

func NewDispatcher(worker PaymentProcessor, processed domain.ProcessedEventRepository, notifier Notifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{worker: worker, processed: processed, notifier: notifier, log: log}
}

// Dispatch handles one raw bus delivery body. A non-nil error here must
// trigger bus-level redelivery / DLQ routing by the caller; a nil error
// means the record must not be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}

	if err := validateEnvelope(envelope); err != nil {
		return fmt.Errorf("validate envelope: %w", err)
	}

	switch {
	case envelope.EventType == domain.EventPaymentCreated && envelope.Version == domain.CurrentEventVersion:
		return d.dispatchPaymentCreated(ctx, envelope)
	case (envelope.EventType == domain.EventPaymentSuccess || envelope.EventType == domain.EventPaymentFailed) && envelope.Version == domain.CurrentEventVersion:
		return d.dispatchNotification(ctx, envelope)
	default:
		d.log.WarnContext(ctx, "unsupported event type or version, acknowledging",
			"event_type", envelope.EventType, "version", envelope.Version, "event_id", envelope.EventID)
		return nil
	}
}

func validateEnvelope(e domain.Envelope) error {
	if e.EventID == "" || e.EventType == "" || e.AggregateID == "" {
		return fmt.Errorf("missing required envelope field")
	}
	if e.Payload == nil {
		return fmt.Errorf("missing payload")
	}
	if _, ok := e.Payload["payment_id"]; !ok {
		return fmt.Errorf("payload missing payment_id")
	}
	return nil
}

func (d *Dispatcher) dispatchPaymentCreated(ctx context.Context, envelope domain.Envelope) error {
	paymentID, err := domain.ParsePaymentID(fmt.Sprint(envelope.Payload["payment_id"]))
	if err != nil {
		return fmt.Errorf("invalid payment_id in payload: %w", err)
	}
	return d.worker.Process(ctx, paymentID)
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, envelope domain.Envelope) error {
	inserted, err := d.processed.MarkProcessed(ctx, envelope.EventID)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if !inserted {
		d.log.InfoContext(ctx, "duplicate notification event, skipping", "event_id", envelope.EventID)
		return nil
	}

	userID := fmt.Sprint(envelope.Payload["user_id"])
	amount := envelope.Payload["amount"]
	currency := envelope.Payload["currency"]

	var message string
	switch envelope.EventType {
	case domain.EventPaymentSuccess:
		message = fmt.Sprintf("Your payment of %v %v was successful.", amount, currency)
	case domain.EventPaymentFailed:
		message = fmt.Sprintf("Your payment of %v %v failed.", amount, currency)
	default:
		return errors.New("dispatchNotification called with a non-terminal event type")
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = d.notifier.SendEmail(ctx, userID, message)
	}()
	go func() {
		defer wg.Done()
		errs[1] = d.notifier.SendSMS(ctx, userID, message)
	}()
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		return fmt.Errorf("notification delivery failed: email=%v sms=%v", errs[0], errs[1])
	}

	d.log.InfoContext(ctx, "notification sent",
		"event_id", envelope.EventID, "payment_id", envelope.AggregateID, "event_type", envelope.EventType)
	return nil
}
