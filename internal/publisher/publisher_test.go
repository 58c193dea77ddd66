package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/payflow/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOutbox struct {
	rows []domain.OutboxEvent
}

func (o *fakeOutbox) DrainBatch(ctx context.Context, limit int, fn func(domain.OutboxEvent) bool) (int, error) {
	published := 0
	n := limit
	if n > len(o.rows) {
		n = len(o.rows)
	}
	for i := 0; i < n; i++ {
		if fn(o.rows[i]) {
			published++
		}
	}
	return published, nil
}

type fakeBus struct {
	published []domain.Envelope
	fail      bool
}

func (b *fakeBus) Publish(ctx context.Context, envelope domain.Envelope) error {
	if b.fail {
		return errors.New("publish failed")
	}
	b.published = append(b.published, envelope)
	return nil
}

func newEvent(eventType string, withPaymentID bool) domain.OutboxEvent {
	payload := map[string]any{}
	if withPaymentID {
		payload["payment_id"] = "p1"
	}
	return domain.OutboxEvent{
		ID:         1,
		EventID:    "e1",
		EventType:  eventType,
		Version:    1,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

func TestPublisher_EmptyBatch_CleanNoOp(t *testing.T) {
	pub := NewPublisher(&fakeOutbox{}, &fakeBus{}, 10, testLogger())
	published, err := pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

func TestPublisher_PublishesValidEvents(t *testing.T) {
	outbox := &fakeOutbox{rows: []domain.OutboxEvent{newEvent(domain.EventPaymentCreated, true)}}
	b := &fakeBus{}
	pub := NewPublisher(outbox, b, 10, testLogger())

	published, err := pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Len(t, b.published, 1)
}

func TestPublisher_MissingPaymentID_DroppedButStamped(t *testing.T) {
	outbox := &fakeOutbox{rows: []domain.OutboxEvent{newEvent(domain.EventPaymentCreated, false)}}
	b := &fakeBus{}
	pub := NewPublisher(outbox, b, 10, testLogger())

	published, err := pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published, "contract-check drops must still stamp published to avoid wedging the batch")
	assert.Empty(t, b.published)
}

func TestPublisher_PublishFailure_LeavesRowUnpublished(t *testing.T) {
	outbox := &fakeOutbox{rows: []domain.OutboxEvent{newEvent(domain.EventPaymentCreated, true)}}
	b := &fakeBus{fail: true}
	pub := NewPublisher(outbox, b, 10, testLogger())

	published, err := pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}
