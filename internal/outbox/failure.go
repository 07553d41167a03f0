package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter parks events that exhausted their delivery attempts until the
// DLQManager offers them for replay.
type DLQWriter struct {
	pool       *pgxpool.Pool
	retryDelay time.Duration
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool, retryDelay time.Duration) *DLQWriter {
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	return &DLQWriter{pool: pool, retryDelay: retryDelay}
}

// Write records messages in participation_outbox_dlq with the supplied reason
// and retires the originals from the outbox, all in one transaction. An event
// that fails again after a replay bumps its retry_count and waits twice as long.
func (w *DLQWriter) Write(ctx context.Context, messages []Message, reason string) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if _, err := tx.Exec(ctx,
			`INSERT INTO participation_outbox_dlq AS d (event_id, event_type, topic, partition_key, payload, reason, next_retry_at)
	         VALUES ($1::uuid,$2,$3,$4,$5,$6, NOW() + make_interval(secs => $7))
	         ON CONFLICT (event_id) DO UPDATE SET
	             retry_count = d.retry_count + 1,
	             reason = EXCLUDED.reason,
	             failed_at = NOW(),
	             requeued_at = NULL,
	             next_retry_at = NOW() + LEAST(make_interval(secs => $7 * power(2, d.retry_count + 1)), INTERVAL '1 hour')`,
			msg.EventID, msg.EventType, msg.Topic, msg.PartitionKey, msg.Payload, entryReason, w.retryDelay.Seconds(),
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE participation_outbox SET published_at = NOW() WHERE seq = ANY($1)`, seqs(messages)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
