package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
)

// OutboxRepository is the relay's view of the outbox table.
type OutboxRepository struct {
	db
}

func NewOutboxRepository(pool *pgxpool.Pool, opts ...Option) *OutboxRepository {
	return &OutboxRepository{db: newDB(pool, opts)}
}

// ClaimPending moves up to limit due rows to PROCESSING. Concurrent relays
// skip rows another relay has locked.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	const query = `
WITH due AS (
	SELECT id
	FROM outbox
	WHERE status = 'PENDING' AND next_retry_at <= NOW()
	ORDER BY id
	FOR UPDATE SKIP LOCKED
	LIMIT $1
)
UPDATE outbox o
SET status = 'PROCESSING',
	processing_at = NOW(),
	attempts = o.attempts + 1
FROM due
WHERE o.id = due.id
RETURNING o.id, o.event_id, o.aggregate, o.aggregate_id, o.event_type, o.payload, o.created_at, o.attempts`

	rows, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
		var (
			rec     outbox.Record
			payload []byte
		)
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Aggregate, &rec.AggregateID, &rec.EventType, &payload, &rec.CreatedAt, &rec.Attempts)
		rec.Payload = payload
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return records, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	const stmt = `
UPDATE outbox
SET status = 'SENT', sent_at = NOW(), processing_at = NULL, last_error = NULL
WHERE id = $1`
	if _, err := r.exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("mark outbox %d sent: %w", id, err)
	}
	return nil
}

// MarkFailed returns the row to PENDING, due again at nextRetryAt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	const stmt = `
UPDATE outbox
SET status = 'PENDING', processing_at = NULL, next_retry_at = $2, last_error = $3
WHERE id = $1`
	if _, err := r.exec(ctx, stmt, id, nextRetryAt, errMsg); err != nil {
		return fmt.Errorf("mark outbox %d failed: %w", id, err)
	}
	return nil
}

// RequeueStuck returns rows that have been PROCESSING for longer than
// timeout, typically because a relay died mid-batch. The age is measured on
// the database clock, the same clock that stamped processing_at.
func (r *OutboxRepository) RequeueStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	const stmt = `
UPDATE outbox
SET status = 'PENDING', processing_at = NULL
WHERE status = 'PROCESSING' AND processing_at < NOW() - $1::bigint * INTERVAL '1 microsecond'`
	tag, err := r.exec(ctx, stmt, timeout.Microseconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stuck outbox rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendOutbox inserts rec in the current transaction.
func (d db) AppendOutbox(ctx context.Context, rec outbox.Record) error {
	const stmt = `
INSERT INTO outbox (event_id, aggregate, aggregate_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := d.exec(ctx, stmt, rec.EventID, rec.Aggregate, rec.AggregateID, rec.EventType, []byte(rec.Payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox %s: %w", rec.EventType, err)
	}
	return nil
}
