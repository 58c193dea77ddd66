package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quietloop/payflow/internal/domain"
)

// amqpBus publishes to a topic exchange, routing on event_type, exercised
// in local/dev/CI when USE_AWS_EVENTS=false.
type amqpBus struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *slog.Logger
}

func NewAMQPBus(url, exchange string, log *slog.Logger) (Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare amqp exchange: %w", err)
	}

	return &amqpBus{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (b *amqpBus) Publish(ctx context.Context, envelope domain.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = b.channel.PublishWithContext(ctx, b.exchange, envelope.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    envelope.EventID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish to amqp exchange %q: %w", b.exchange, err)
	}
	return nil
}

func (b *amqpBus) Close() error {
	chErr := b.channel.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
