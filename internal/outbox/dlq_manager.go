package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays dead-lettered participation events into the outbox and
// quarantines the ones that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce handles up to batchSize due DLQ entries and returns how many were
// requeued or quarantined.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT id, event_id::text, event_type, topic, partition_key, payload, retry_count
                    FROM participation_outbox_dlq
                   WHERE requeued_at IS NULL AND quarantined_at IS NULL AND next_retry_at <= NOW()
                   ORDER BY next_retry_at, id
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		handled, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if handled {
			processed++
		}
	}
	updateBacklogGauge(ctx, m.pool)
	return processed, err
}

// handleEntry requeues or quarantines one entry. It reports false when another
// manager already holds the row.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM participation_outbox_dlq
        WHERE id = $1 AND requeued_at IS NULL AND quarantined_at IS NULL
        FOR UPDATE SKIP LOCKED`, entry.ID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE participation_outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		recordDLQQuarantined(entry)
		return true, nil
	}

	// A savepoint keeps the transaction usable when the requeue fails.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	if requeueErr := requeueOutbox(ctx, sp, entry); requeueErr != nil {
		_ = sp.Rollback(ctx)
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := tx.Exec(ctx,
			`UPDATE participation_outbox_dlq
               SET retry_count = retry_count + 1,
                   last_attempt_at = NOW(),
                   next_retry_at = NOW() + $1::interval,
                   reason = $2
             WHERE id = $3`,
			delay, requeueErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		recordDLQRetry(entry)
		return false, nil
	}
	if err := sp.Commit(ctx); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE participation_outbox_dlq SET requeued_at = NOW(), last_attempt_at = NOW() WHERE id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	recordDLQRequeued(entry)
	return true, nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeueOutbox hands the event back to the dispatcher. The retired outbox row
// is reopened when it still exists, otherwise the event is inserted again
// under its original event_id.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	tag, err := tx.Exec(ctx, `UPDATE participation_outbox
        SET published_at = NULL, claimed_at = NULL, attempts = 0
        WHERE event_id = $1::uuid`, entry.EventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = tx.Exec(ctx, `INSERT INTO participation_outbox (event_id, event_type, topic, partition_key, payload)
        VALUES ($1::uuid,$2,$3,$4,$5)`,
		entry.EventID, entry.EventType, entry.Topic, entry.PartitionKey, entry.Payload,
	)
	return err
}

// dlqEntry represents a participation_outbox_dlq row selected for processing.
type dlqEntry struct {
	ID           int64
	EventID      string
	EventType    string
	Topic        string
	PartitionKey string
	Payload      []byte
	RetryCount   int
}
