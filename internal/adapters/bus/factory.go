package bus

import (
	"context"
	"log/slog"
)

// Config carries the subset of internal/config.BusConfig the factory needs,
// kept local so the bus package does not import internal/config.
type Config struct {
	UseAWSEvents bool
	EventBusName string
	AWSRegion    string
	AMQPURL      string
	AMQPExchange string
}

// New selects the wire transport per USE_AWS_EVENTS.
func New(ctx context.Context, cfg Config, log *slog.Logger) (Bus, error) {
	if cfg.UseAWSEvents {
		return NewEventBridgeBus(ctx, cfg.AWSRegion, cfg.EventBusName, log)
	}
	return NewAMQPBus(cfg.AMQPURL, cfg.AMQPExchange, log)
}
