// Package ingress implements idempotent payment ingress. It enforces the
// rate limiter, consults the idempotency cache, falls back to the database,
// and otherwise drives the atomic payment write.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietloop/payflow/internal/domain"
)

// RateLimiter is the subset of redis.RateLimiter the ingress path depends on.
type RateLimiter interface {
	Allow(ctx context.Context, principal string) bool
}

// IdempotencyCache is the subset of redis.IdempotencyCache the ingress path depends on.
type IdempotencyCache interface {
	Lookup(ctx context.Context, idempotencyKey string) (string, bool)
	Store(ctx context.Context, idempotencyKey, paymentID string, ttl time.Duration)
}

type CreatePaymentRequest struct {
	UserID         string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

type CreatePaymentResponse struct {
	PaymentID string
	Status    string
}

type Service struct {
	payments   domain.PaymentRepository
	rateLimit  RateLimiter
	idempotent IdempotencyCache
	cacheTTL   time.Duration
	log        *slog.Logger
}

func NewService(
	payments domain.PaymentRepository,
	rateLimit RateLimiter,
	idempotent IdempotencyCache,
	cacheTTL time.Duration,
	log *slog.Logger,
) *Service {
	return &Service{
		payments:   payments,
		rateLimit:  rateLimit,
		idempotent: idempotent,
		cacheTTL:   cacheTTL,
		log:        log,
	}
}

// CreatePayment enforces rate limiting and idempotency before durably
// creating a payment. It never calls the gateway; the response is always
// a durable-but-unprocessed payment id.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResponse, error) {
	if req.IdempotencyKey == "" {
		return CreatePaymentResponse{}, domain.ErrMissingIdempotencyKey
	}

	if !s.rateLimit.Allow(ctx, req.UserID) {
		return CreatePaymentResponse{}, domain.ErrThrottled
	}

	if cachedID, ok := s.idempotent.Lookup(ctx, req.IdempotencyKey); ok {
		payment, err := s.payments.FindByID(ctx, mustParseID(cachedID))
		if err == nil {
			return responseFor(payment), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return CreatePaymentResponse{}, fmt.Errorf("load cached payment: %w", err)
		}
		s.log.WarnContext(ctx, "idempotency cache pointed at a missing payment, falling through",
			"idempotency_key", req.IdempotencyKey, "cached_payment_id", cachedID)
	}

	existing, err := s.payments.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		s.cache(ctx, req.IdempotencyKey, existing)
		return responseFor(existing), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return CreatePaymentResponse{}, fmt.Errorf("idempotency key lookup: %w", err)
	}

	amount, err := domain.NewMoney(req.AmountMinor, req.Currency)
	if err != nil {
		return CreatePaymentResponse{}, fmt.Errorf("invalid amount: %w", err)
	}

	payment, err := domain.New(req.UserID, amount, req.IdempotencyKey)
	if err != nil {
		return CreatePaymentResponse{}, fmt.Errorf("create payment: %w", err)
	}

	if err := s.payments.CreateAtomic(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, findErr := s.payments.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if findErr != nil {
				return CreatePaymentResponse{}, fmt.Errorf("re-read after unique violation: %w", findErr)
			}
			s.cache(ctx, req.IdempotencyKey, existing)
			return responseFor(existing), nil
		}
		return CreatePaymentResponse{}, fmt.Errorf("save payment: %w", err)
	}

	s.cache(ctx, req.IdempotencyKey, payment)

	s.log.InfoContext(ctx, "payment created",
		"payment_id", payment.ID.String(),
		"user_id", payment.UserID,
		"amount", payment.Amount.String(),
	)

	return responseFor(payment), nil
}

func (s *Service) cache(ctx context.Context, idempotencyKey string, payment *domain.Payment) {
	s.idempotent.Store(ctx, idempotencyKey, payment.ID.String(), s.cacheTTL)
}

func responseFor(p *domain.Payment) CreatePaymentResponse {
	return CreatePaymentResponse{PaymentID: p.ID.String(), Status: string(p.Status)}
}

// mustParseID tolerates a malformed cache entry by returning a zero
// PaymentID, which FindByID will simply fail to find (ErrNotFound),
// triggering the database fallback above.
func mustParseID(s string) domain.PaymentID {
	id, err := domain.ParsePaymentID(s)
	if err != nil {
		return domain.PaymentID{}
	}
	return id
}
