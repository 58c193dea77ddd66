// Package bus adapts the outbox publisher and DLQ replay onto one of two
// wire transports selected by USE_AWS_EVENTS.
package bus

import (
	"context"

	"github.com/quietloop/payflow/internal/domain"
)

// Bus publishes a single event envelope to the configured transport.
// Implementations must treat EventID as the dedup key consumers rely on
// and must not embed retry logic: publish failure is reported to the
// caller, who leaves published_at null for the next drain.
type Bus interface {
	Publish(ctx context.Context, envelope domain.Envelope) error
}
