package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// claimLease is how long a claimed row stays hidden from other dispatchers
// before it becomes eligible again.
const claimLease = 30 * time.Second

// PostgresStore reads and updates participation_outbox through a pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	dlq  *DLQWriter
}

// NewPostgresStore wires the outbox tables behind pool. retryDelay is the
// first wait before a dead-lettered event is offered for replay.
func NewPostgresStore(pool *pgxpool.Pool, retryDelay time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, dlq: NewDLQWriter(pool, retryDelay)}
}

// Claim locks up to limit unpublished rows, stamps claimed_at and returns them in insertion order.
func (s *PostgresStore) Claim(ctx context.Context, limit int) (messages []Message, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `SELECT seq, event_id::text, event_type, topic, partition_key, payload, attempts
        FROM participation_outbox
        WHERE published_at IS NULL
          AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
        ORDER BY seq
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit, claimLease.Seconds())
	if err != nil {
		return nil, err
	}

	seqs := make([]int64, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Seq, &msg.EventID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload, &msg.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		seqs = append(seqs, msg.Seq)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(seqs) == 0 {
		_ = tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE participation_outbox SET claimed_at = NOW() WHERE seq = ANY($1)`, seqs); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkPublished stamps published_at on delivered rows and clears any DLQ
// entries a replay has now delivered.
func (s *PostgresStore) MarkPublished(ctx context.Context, messages []Message) error {
	_, err := s.pool.Exec(ctx, `WITH delivered AS (
            UPDATE participation_outbox SET published_at = NOW()
            WHERE seq = ANY($1)
            RETURNING event_id
        )
        DELETE FROM participation_outbox_dlq WHERE event_id IN (SELECT event_id FROM delivered)`, seqs(messages))
	return err
}

// Release drops the claim on rows that failed delivery and counts the attempt,
// so the next poll picks them up again.
func (s *PostgresStore) Release(ctx context.Context, messages []Message) error {
	_, err := s.pool.Exec(ctx, `UPDATE participation_outbox SET claimed_at = NULL, attempts = attempts + 1 WHERE seq = ANY($1)`, seqs(messages))
	return err
}

// DeadLetter records undeliverable rows in the DLQ and retires them from the outbox.
func (s *PostgresStore) DeadLetter(ctx context.Context, messages []Message, reason string) error {
	return s.dlq.Write(ctx, messages, reason)
}

func seqs(messages []Message) []int64 {
	out := make([]int64, len(messages))
	for i, msg := range messages {
		out[i] = msg.Seq
	}
	return out
}
