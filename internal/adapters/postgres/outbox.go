package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietloop/payflow/internal/domain"
)

// OutboxRepo implements domain.OutboxRepository, draining unpublished rows
// under SKIP LOCKED so multiple publisher replicas never contend on the
// same row.
type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

func (r *OutboxRepo) DrainBatch(ctx context.Context, limit int, fn func(domain.OutboxEvent) bool) (int, error) {
	published := 0

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_id, aggregate_id, event_type, version, payload, occurred_at, created_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY occurred_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("select outbox batch: %w", err)
		}

		var toPublish []domain.OutboxEvent
		for rows.Next() {
			var (
				rowID       int64
				eventID     string
				aggregateID string
				eventType   string
				version     int
				rawPayload  []byte
				occurredAt  time.Time
				createdAt   time.Time
			)
			if err := rows.Scan(&rowID, &eventID, &aggregateID, &eventType, &version, &rawPayload, &occurredAt, &createdAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan outbox row: %w", err)
			}

			var payload map[string]any
			if err := json.Unmarshal(rawPayload, &payload); err != nil {
				rows.Close()
				return fmt.Errorf("unmarshal outbox payload: %w", err)
			}

			aggID, err := domain.ParsePaymentID(aggregateID)
			if err != nil {
				rows.Close()
				return err
			}

			toPublish = append(toPublish, domain.OutboxEvent{
				ID:          rowID,
				EventID:     eventID,
				AggregateID: aggID,
				EventType:   eventType,
				Version:     version,
				Payload:     payload,
				OccurredAt:  occurredAt,
				CreatedAt:   createdAt,
			})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox rows: %w", err)
		}
		rows.Close()

		for _, evt := range toPublish {
			if !fn(evt) {
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = $1`, evt.ID); err != nil {
				return fmt.Errorf("mark outbox event published: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
