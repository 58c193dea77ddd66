package ingress

import (
	"context"
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

type fakeRateLimiter struct{ allow bool }

func (f *fakeRateLimiter) Allow(ctx context.Context, principal string) bool { return f.allow }

type fakeCache struct {
	data map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Lookup(ctx context.Context, key string) (string, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Store(ctx context.Context, key, paymentID string, ttl time.Duration) {
	c.data[key] = paymentID
}

type fakeRepo struct {
	byID  map[string]*domain.Payment
	byKey map[string]*domain.Payment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*domain.Payment{}, byKey: map[string]*domain.Payment{}}
}

func (r *fakeRepo) CreateAtomic(ctx context.Context, p *domain.Payment) error {
	if _, ok := r.byKey[p.IdempotencyKey]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[p.ID.String()] = p
	r.byKey[p.IdempotencyKey] = p
	return nil
}

func (r *fakeRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	p, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id domain.PaymentID) (*domain.Payment, error) {
	p, ok := r.byID[id.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) CommitTerminal(ctx context.Context, p *domain.Payment, evt domain.OutboxEvent) error {
	return nil
}

func newService(repo *fakeRepo, allow bool, cache *fakeCache) *Service {
	return NewService(repo, &fakeRateLimiter{allow: allow}, cache, 300*time.Second, testLogger())
}

func TestCreatePayment_MissingIdempotencyKey_IsClientError(t *testing.T) {
	svc := newService(newFakeRepo(), true, newFakeCache())
	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID: "u1", AmountMinor: 500, Currency: "INR",
	})
	require.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)
}

func TestCreatePayment_RateLimited(t *testing.T) {
	svc := newService(newFakeRepo(), false, newFakeCache())
	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID: "u1", AmountMinor: 500, Currency: "INR", IdempotencyKey: "k1",
	})
	require.ErrorIs(t, err, domain.ErrThrottled)
}

func TestCreatePayment_SameKeyTwice_ReturnsSamePaymentID(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, true, newFakeCache())
	ctx := context.Background()

	first, err := svc.CreatePayment(ctx, CreatePaymentRequest{
		UserID: "u1", AmountMinor: 500, Currency: "INR", IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	second, err := svc.CreatePayment(ctx, CreatePaymentRequest{
		UserID: "u1", AmountMinor: 999, Currency: "USD", IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID, "second body must be ignored (idempotent ingress law)")
	assert.Len(t, repo.byKey, 1)
}

func TestCreatePayment_CacheHitPointingAtMissingPayment_FallsThroughToDB(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	svc := newService(repo, true, cache)
	ctx := context.Background()

	cache.data["k1"] = domain.NewPaymentID().String()

	resp, err := svc.CreatePayment(ctx, CreatePaymentRequest{
		UserID: "u1", AmountMinor: 500, Currency: "INR", IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.PaymentID)
}

func TestCreatePayment_InvalidAmount(t *testing.T) {
	svc := newService(newFakeRepo(), true, newFakeCache())
	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID: "u1", AmountMinor: 0, Currency: "INR", IdempotencyKey: "k1",
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
