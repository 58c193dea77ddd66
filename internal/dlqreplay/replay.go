// Package dlqreplay implements dead-letter queue replay. It inspects
// dead-lettered EventBridge-shaped messages, drops anything outside the
// terminal-event allow-list as poison, and republishes the rest to the bus.
package dlqreplay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quietloop/payflow/internal/adapters/bus"
	"github.com/quietloop/payflow/internal/adapters/sqsdlq"
	"github.com/quietloop/payflow/internal/domain"
)

// eventBridgeMessage mirrors the source/detail-type/detail envelope that
// EventBridge uses for dead-letter delivery.
type eventBridgeMessage struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
}

// allowedEvent pairs an event_type with its envelope version.
type allowedEvent struct {
	EventType string
	Version   int
}

var terminalAllowList = map[allowedEvent]struct{}{
	{EventType: domain.EventPaymentSuccess, Version: domain.CurrentEventVersion}: {},
	{EventType: domain.EventPaymentFailed, Version: domain.CurrentEventVersion}:  {},
}

const maxBatch = 10

type Replayer struct {
	dlq *sqsdlq.Client
	bus bus.Bus
	log *slog.Logger
}

func NewReplayer(dlq *sqsdlq.Client, b bus.Bus, log *slog.Logger) *Replayer {
	return &Replayer{dlq: dlq, bus: b, log: log}
}

// Run processes up to one batch from the DLQ and reports how many messages
// were replayed and how many were dropped as poison.
func (r *Replayer) Run(ctx context.Context) (replayed, dropped int, err error) {
	messages, err := r.dlq.Receive(ctx, maxBatch)
	if err != nil {
		return 0, 0, fmt.Errorf("receive from dlq: %w", err)
	}
	if len(messages) == 0 {
		r.log.InfoContext(ctx, "dlq empty")
		return 0, 0, nil
	}

	for _, msg := range messages {
		var wrapped eventBridgeMessage
		if err := json.Unmarshal([]byte(msg.Body), &wrapped); err != nil {
			r.log.ErrorContext(ctx, "dlq message is not valid json, dropping", "err", err, "message_id", msg.MessageID)
			r.deleteOrLog(ctx, msg.ReceiptHandle)
			dropped++
			continue
		}

		var envelope domain.Envelope
		if err := json.Unmarshal(wrapped.Detail, &envelope); err != nil {
			r.log.ErrorContext(ctx, "dlq message detail is not a valid envelope, dropping", "err", err, "message_id", msg.MessageID)
			r.deleteOrLog(ctx, msg.ReceiptHandle)
			dropped++
			continue
		}

		key := allowedEvent{EventType: wrapped.DetailType, Version: envelope.Version}
		if _, ok := terminalAllowList[key]; !ok {
			r.log.WarnContext(ctx, "dlq message outside terminal allow-list, dropping as poison",
				"detail_type", wrapped.DetailType, "version", envelope.Version, "message_id", msg.MessageID)
			r.deleteOrLog(ctx, msg.ReceiptHandle)
			dropped++
			continue
		}

		if err := r.bus.Publish(ctx, envelope); err != nil {
			r.log.ErrorContext(ctx, "dlq replay publish failed, leaving message in place",
				"err", err, "event_id", envelope.EventID, "message_id", msg.MessageID)
			continue
		}

		if err := r.dlq.Delete(ctx, msg.ReceiptHandle); err != nil {
			r.log.ErrorContext(ctx, "dlq delete after replay failed", "err", err, "message_id", msg.MessageID)
			continue
		}

		r.log.InfoContext(ctx, "dlq replay succeeded", "event_id", envelope.EventID, "event_type", envelope.EventType)
		replayed++
	}

	return replayed, dropped, nil
}

func (r *Replayer) deleteOrLog(ctx context.Context, receiptHandle string) {
	if err := r.dlq.Delete(ctx, receiptHandle); err != nil {
		r.log.ErrorContext(ctx, "dlq delete of poison message failed", "err", err)
	}
}
