package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/quietloop/payflow/internal/domain"
)

const eventSource = "payflow.payments"

// eventBridgeBus publishes to AWS EventBridge, exercised when
// USE_AWS_EVENTS=true. The envelope's event_type becomes EventBridge's
// detail-type.
type eventBridgeBus struct {
	client  *eventbridge.Client
	busName string
	log     *slog.Logger
}

func NewEventBridgeBus(ctx context.Context, region, busName string, log *slog.Logger) (Bus, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &eventBridgeBus{
		client:  eventbridge.NewFromConfig(awsCfg),
		busName: busName,
		log:     log,
	}, nil
}

func (b *eventBridgeBus) Publish(ctx context.Context, envelope domain.Envelope) error {
	detail, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope detail: %w", err)
	}

	out, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(b.busName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(envelope.EventType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put events to eventbridge bus %q: %w", b.busName, err)
	}
	if out.FailedEntryCount > 0 {
		entry := out.Entries[0]
		return fmt.Errorf("eventbridge rejected entry: %s: %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
	}
	return nil
}
