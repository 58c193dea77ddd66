// Package gateway provides a stand-in for the external payment processor,
// specified only by domain.Gateway: a fixed latency plus a random failure
// rate.
package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/quietloop/payflow/internal/domain"
)

// Fake simulates network latency and charges amount with a configurable
// failure rate.
type Fake struct {
	Latency     time.Duration
	FailureRate float64
	rng         *rand.Rand
}

func NewFake(latency time.Duration, failureRate float64) *Fake {
	return &Fake{
		Latency:     latency,
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Fake) Charge(ctx context.Context, idempotencyKey string, amount int64, currency string) error {
	select {
	case <-time.After(g.Latency):
	case <-ctx.Done():
		return ctx.Err()
	}

	if g.rng.Float64() < g.FailureRate {
		return domain.ErrGateway
	}
	return nil
}
