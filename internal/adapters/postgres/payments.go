package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietloop/payflow/internal/domain"
)

const uniqueViolation = "23505"

// PaymentRepo implements domain.PaymentRepository against a single
// "payments" table plus the shared "outbox_events" table.
type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// CreateAtomic inserts the PENDING payment row and its payment.created
// outbox row in one transaction.
func (r *PaymentRepo) CreateAtomic(ctx context.Context, p *domain.Payment) error {
	evt := p.CreatedEvent()
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal created event payload: %w", err)
	}

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (id, user_id, amount, currency, status, idempotency_key, created_at, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID.String(), p.UserID, p.Amount.Amount(), p.Amount.Currency(), p.Status, p.IdempotencyKey, p.CreatedAt, p.ProcessedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("insert payment: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, aggregate_id, event_type, version, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, evt.EventID, evt.AggregateID.String(), evt.EventType, evt.Version, payload, evt.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

func (r *PaymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, amount, currency, status, idempotency_key, created_at, processed_at
		FROM payments WHERE idempotency_key = $1
	`, key)
	return scanPayment(row)
}

func (r *PaymentRepo) FindByID(ctx context.Context, id domain.PaymentID) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, amount, currency, status, idempotency_key, created_at, processed_at
		FROM payments WHERE id = $1
	`, id.String())
	return scanPayment(row)
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		id             string
		userID         string
		amount         int64
		currency       string
		status         domain.PaymentStatus
		idempotencyKey string
		createdAt      time.Time
		processedAt    *time.Time
	)

	if err := row.Scan(&id, &userID, &amount, &currency, &status, &idempotencyKey, &createdAt, &processedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	pid, err := domain.ParsePaymentID(id)
	if err != nil {
		return nil, err
	}
	money, err := domain.NewMoney(amount, currency)
	if err != nil {
		return nil, err
	}

	return &domain.Payment{
		ID:             pid,
		UserID:         userID,
		Amount:         money,
		Status:         status,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      createdAt,
		ProcessedAt:    processedAt,
	}, nil
}

// CommitTerminal persists a terminal transition and its outbox event in one
// transaction, guarded by a status='PENDING' predicate so a concurrent
// worker's earlier commit always wins.
func (r *PaymentRepo) CommitTerminal(ctx context.Context, p *domain.Payment, evt domain.OutboxEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal terminal event payload: %w", err)
	}

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET status = $1, processed_at = $2
			WHERE id = $3 AND status = 'PENDING'
		`, p.Status, p.ProcessedAt, p.ID.String())
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Already terminal: another worker committed first. No-op, per
			// the PaymentRepository contract.
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, aggregate_id, event_type, version, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, evt.EventID, evt.AggregateID.String(), evt.EventType, evt.Version, payload, evt.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert terminal outbox event: %w", err)
		}
		return nil
	})
}
