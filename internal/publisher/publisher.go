// Package publisher implements the outbox publisher. It drains
// unpublished outbox events in occurred_at order and submits them to the
// bus, hard-validating the payment_id contract before every publish.
package publisher

import (
	"context"
	"log/slog"

	"github.com/quietloop/payflow/internal/adapters/bus"
	"github.com/quietloop/payflow/internal/domain"
)

type Publisher struct {
	outbox    domain.OutboxRepository
	bus       bus.Bus
	batchSize int
	log       *slog.Logger
}

func NewPublisher(outbox domain.OutboxRepository, b bus.Bus, batchSize int, log *slog.Logger) *Publisher {
	return &Publisher{outbox: outbox, bus: b, batchSize: batchSize, log: log}
}

// Run drains one batch. An empty batch is a clean no-op.
func (p *Publisher) Run(ctx context.Context) (published int, err error) {
	return p.outbox.DrainBatch(ctx, p.batchSize, func(evt domain.OutboxEvent) bool {
		envelope, ok := evt.ToEnvelope()
		if !ok {
			// Swallowed by design: a malformed payload is a permanent drop,
			// not a retry, so the row is stamped published to avoid wedging
			// every later batch behind it.
			p.log.ErrorContext(ctx, "outbox event failed payment_id contract check, dropping",
				"event_id", evt.EventID, "event_type", evt.EventType)
			return true
		}

		if err := p.bus.Publish(ctx, envelope); err != nil {
			p.log.WarnContext(ctx, "publish failed, will retry next drain",
				"err", err, "event_id", evt.EventID, "event_type", evt.EventType)
			return false
		}

		p.log.InfoContext(ctx, "event published",
			"event_id", evt.EventID, "event_type", evt.EventType, "aggregate_id", evt.AggregateID.String())
		return true
	})
}
