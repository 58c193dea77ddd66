package dispatcher

import (
	"context"
	"encoding/json"
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

type fakeWorker struct {
	processed []domain.PaymentID
	fail      bool
}

func (w *fakeWorker) Process(ctx context.Context, id domain.PaymentID) error {
	if w.fail {
		return errors.New("worker failed")
	}
	w.processed = append(w.processed, id)
	return nil
}

type fakeProcessedEvents struct {
	seen map[string]bool
}

func newFakeProcessedEvents() *fakeProcessedEvents {
	return &fakeProcessedEvents{seen: map[string]bool{}}
}

func (p *fakeProcessedEvents) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	if p.seen[eventID] {
		return false, nil
	}
	p.seen[eventID] = true
	return true, nil
}

type fakeNotifier struct {
	emails, sms int
}

func (n *fakeNotifier) SendEmail(ctx context.Context, userID, message string) error {
	n.emails++
	return nil
}

func (n *fakeNotifier) SendSMS(ctx context.Context, userID, message string) error {
	n.sms++
	return nil
}

func envelopeJSON(t *testing.T, e domain.Envelope) []byte {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return body
}

func TestDispatch_PaymentCreated_RoutesToWorker(t *testing.T) {
	w := &fakeWorker{}
	d := NewDispatcher(w, newFakeProcessedEvents(), &fakeNotifier{}, testLogger())

	paymentID := domain.NewPaymentID()
	envelope := domain.Envelope{
		EventID: "e1", EventType: domain.EventPaymentCreated, AggregateID: paymentID.String(),
		Version: 1, OccurredAt: time.Now().UTC(),
		Payload: map[string]any{"payment_id": paymentID.String()},
	}

	err := d.Dispatch(context.Background(), envelopeJSON(t, envelope))
	require.NoError(t, err)
	require.Len(t, w.processed, 1)
	assert.Equal(t, paymentID.String(), w.processed[0].String())
}

func TestDispatch_Terminal_SendsNotificationOnce(t *testing.T) {
	processed := newFakeProcessedEvents()
	notifier := &fakeNotifier{}
	d := NewDispatcher(&fakeWorker{}, processed, notifier, testLogger())

	envelope := domain.Envelope{
		EventID: "e2", EventType: domain.EventPaymentSuccess, AggregateID: "p1",
		Version: 1, OccurredAt: time.Now().UTC(),
		Payload: map[string]any{"payment_id": "p1", "user_id": "u1", "amount": 500, "currency": "INR"},
	}
	body := envelopeJSON(t, envelope)

	require.NoError(t, d.Dispatch(context.Background(), body))
	require.NoError(t, d.Dispatch(context.Background(), body))

	assert.Equal(t, 1, notifier.emails, "duplicate delivery of the same event_id must not double-send")
	assert.Equal(t, 1, notifier.sms)
}

func TestDispatch_UnsupportedVersion_AcknowledgedAndDropped(t *testing.T) {
	d := NewDispatcher(&fakeWorker{}, newFakeProcessedEvents(), &fakeNotifier{}, testLogger())

	envelope := domain.Envelope{
		EventID: "e3", EventType: domain.EventPaymentCreated, AggregateID: "p1",
		Version: 2, OccurredAt: time.Now().UTC(),
		Payload: map[string]any{"payment_id": "p1"},
	}

	err := d.Dispatch(context.Background(), envelopeJSON(t, envelope))
	require.NoError(t, err, "unsupported event version must be acknowledged, never retried")
}

func TestDispatch_MissingPaymentIDInPayload_RejectedForRedelivery(t *testing.T) {
	d := NewDispatcher(&fakeWorker{}, newFakeProcessedEvents(), &fakeNotifier{}, testLogger())

	envelope := domain.Envelope{
		EventID: "e4", EventType: domain.EventPaymentCreated, AggregateID: "p1",
		Version: 1, OccurredAt: time.Now().UTC(),
		Payload: map[string]any{"not_payment_id": "p1"},
	}

	err := d.Dispatch(context.Background(), envelopeJSON(t, envelope))
	require.Error(t, err)
}

func TestDispatch_InvalidJSON_Rejected(t *testing.T) {
	d := NewDispatcher(&fakeWorker{}, newFakeProcessedEvents(), &fakeNotifier{}, testLogger())
	err := d.Dispatch(context.Background(), []byte("not json"))
	require.Error(t, err)
}
