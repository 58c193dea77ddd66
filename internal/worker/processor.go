// Package worker implements the payment processing core. It loads a
// pending payment under a distributed lock, calls the external gateway,
// and commits the resulting terminal state with its outbox event in one
// transaction. A gateway failure is committed as terminal state and never
// re-raised, so it is never redelivered.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quietloop/payflow/internal/domain"
)

// Locker is the subset of redis.DistributedLock the worker depends on.
type Locker interface {
	Acquire(ctx context.Context, name string) (string, bool)
	Release(ctx context.Context, name, token string)
}

type Processor struct {
	payments domain.PaymentRepository
	lock     Locker
	gateway  domain.Gateway
	log      *slog.Logger
}

func NewProcessor(payments domain.PaymentRepository, lock Locker, gateway domain.Gateway, log *slog.Logger) *Processor {
	return &Processor{payments: payments, lock: lock, gateway: gateway, log: log}
}

func lockName(id domain.PaymentID) string { return "payment:" + id.String() }

// Process handles a single payment.created delivery.
func (p *Processor) Process(ctx context.Context, paymentID domain.PaymentID) error {
	token, ok := p.lock.Acquire(ctx, lockName(paymentID))
	if !ok {
		p.log.InfoContext(ctx, "payment lock already held, skipping", "payment_id", paymentID.String())
		return nil
	}
	defer p.lock.Release(ctx, lockName(paymentID), token)

	payment, err := p.payments.FindByID(ctx, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		p.log.WarnContext(ctx, "payment not found, nothing to process", "payment_id", paymentID.String())
		return nil
	}
	if err != nil {
		return err
	}

	if payment.Status != domain.StatusPending {
		p.log.InfoContext(ctx, "payment already processed, no-op",
			"payment_id", paymentID.String(), "status", string(payment.Status))
		return nil
	}

	chargeErr := p.gateway.Charge(ctx, payment.ID.String(), payment.Amount.Amount(), payment.Amount.Currency())
	processedAt := time.Now().UTC()

	if chargeErr != nil {
		p.log.WarnContext(ctx, "gateway charge failed, committing terminal failure",
			"err", chargeErr, "payment_id", paymentID.String())
		if err := payment.Fail(processedAt); err != nil {
			return err
		}
	} else {
		if err := payment.Succeed(processedAt); err != nil {
			return err
		}
	}

	evt, err := payment.TerminalEvent()
	if err != nil {
		return err
	}

	if err := p.payments.CommitTerminal(ctx, payment, evt); err != nil {
		return err
	}

	p.log.InfoContext(ctx, "payment processed",
		"payment_id", paymentID.String(), "status", string(payment.Status))
	return nil
}
