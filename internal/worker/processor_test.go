package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/payflow/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLock struct {
	held map[string]string
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]string{}} }

func (l *fakeLock) Acquire(ctx context.Context, name string) (string, bool) {
	if _, ok := l.held[name]; ok {
		return "", false
	}
	token := "token-" + name
	l.held[name] = token
	return token, true
}

func (l *fakeLock) Release(ctx context.Context, name, token string) {
	if l.held[name] == token {
		delete(l.held, name)
	}
}

type fakeGateway struct {
	fail bool
}

func (g *fakeGateway) Charge(ctx context.Context, idempotencyKey string, amount int64, currency string) error {
	if g.fail {
		return domain.ErrGateway
	}
	return nil
}

type fakeRepo struct {
	byID          map[string]*domain.Payment
	commitCalls   int
	commitNoop    bool
	commitLastErr error
}

func newFakeRepo(p *domain.Payment) *fakeRepo {
	return &fakeRepo{byID: map[string]*domain.Payment{p.ID.String(): p}}
}

func (r *fakeRepo) CreateAtomic(ctx context.Context, p *domain.Payment) error { return nil }

func (r *fakeRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) FindByID(ctx context.Context, id domain.PaymentID) (*domain.Payment, error) {
	p, ok := r.byID[id.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) CommitTerminal(ctx context.Context, p *domain.Payment, evt domain.OutboxEvent) error {
	r.commitCalls++
	current := r.byID[p.ID.String()]
	if current.Status != domain.StatusPending {
		r.commitNoop = true
		return nil
	}
	r.byID[p.ID.String()] = p
	return nil
}

func newPendingPayment(t *testing.T) *domain.Payment {
	t.Helper()
	amount, err := domain.NewMoney(500, "INR")
	require.NoError(t, err)
	p, err := domain.New("user-1", amount, "idem-1")
	require.NoError(t, err)
	return p
}

func TestProcessor_GatewaySuccess_CommitsSuccessTerminal(t *testing.T) {
	p := newPendingPayment(t)
	repo := newFakeRepo(p)
	proc := NewProcessor(repo, newFakeLock(), &fakeGateway{}, testLogger())

	err := proc.Process(context.Background(), p.ID)
	require.NoError(t, err)

	got := repo.byID[p.ID.String()]
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestProcessor_GatewayFailure_CommitsFailedTerminal_NotReraised(t *testing.T) {
	p := newPendingPayment(t)
	repo := newFakeRepo(p)
	proc := NewProcessor(repo, newFakeLock(), &fakeGateway{fail: true}, testLogger())

	err := proc.Process(context.Background(), p.ID)
	require.NoError(t, err, "gateway failure must be committed as terminal state, not re-raised for redelivery")

	got := repo.byID[p.ID.String()]
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestProcessor_RetryOnTerminalPayment_IsNoOp(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.Succeed(p.CreatedAt))
	repo := newFakeRepo(p)
	proc := NewProcessor(repo, newFakeLock(), &fakeGateway{fail: true}, testLogger())

	err := proc.Process(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.commitCalls, "already-terminal payment must short-circuit before any commit attempt")
}

func TestProcessor_LockContention_IsNoOp(t *testing.T) {
	p := newPendingPayment(t)
	repo := newFakeRepo(p)
	lock := newFakeLock()
	lock.held["payment:"+p.ID.String()] = "someone-else"

	proc := NewProcessor(repo, lock, &fakeGateway{}, testLogger())
	err := proc.Process(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.commitCalls)
}

func TestProcessor_PaymentNotFound_IsNoOp(t *testing.T) {
	repo := newFakeRepo(newPendingPayment(t))
	proc := NewProcessor(repo, newFakeLock(), &fakeGateway{}, testLogger())

	missing := domain.NewPaymentID()
	err := proc.Process(context.Background(), missing)
	require.NoError(t, err)
}

func TestProcessor_LockAlwaysReleased(t *testing.T) {
	p := newPendingPayment(t)
	repo := newFakeRepo(p)
	lock := newFakeLock()
	proc := NewProcessor(repo, lock, &fakeGateway{}, testLogger())

	require.NoError(t, proc.Process(context.Background(), p.ID))
	_, held := lock.held["payment:"+p.ID.String()]
	assert.False(t, held, "lock must be released unconditionally after processing")
}
