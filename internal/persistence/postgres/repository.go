// Package postgres provides the PostgreSQL-backed activity repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/events"
)

// Backend is the name reported for this repository.
const Backend = "postgres"

const uniqueViolation = "23505"

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures optional behaviour for the Repository.
type Option func(*Repository)

// WithParticipationEvents records an outbox row for every roster change.
func WithParticipationEvents() Option {
	return func(r *Repository) {
		r.recordEvents = true
	}
}

// Repository provides Postgres-backed persistence for activities and participations.
type Repository struct {
	pool         *pgxpool.Pool
	recordEvents bool
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend implements domain.Repository.
func (r *Repository) Backend() string { return Backend }

// Atomically runs fn inside one transaction. Activity lookups made through
// the supplied Queries lock the activity row until commit.
func (r *Repository) Atomically(ctx context.Context, fn func(q domain.Queries) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(&queries{db: tx, lockActivity: true, recordEvents: r.recordEvents}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// ListActivities returns every activity joined with its participants.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.ActivityRoster, error) {
	const query = `SELECT a.id, a.name, a.description, a.schedule, a.max_participants, u.email
        FROM activity a
        LEFT JOIN participant p ON p.activity_id = a.id
        LEFT JOIN "user" u ON u.id = p.user_id
        ORDER BY a.id, p.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	rosters := make([]domain.ActivityRoster, 0)
	for rows.Next() {
		var (
			activity    domain.Activity
			description *string
			schedule    *string
			email       *string
		)
		if err := rows.Scan(&activity.ID, &activity.Name, &description, &schedule, &activity.MaxParticipants, &email); err != nil {
			return nil, unavailable(err)
		}
		if n := len(rosters); n == 0 || rosters[n-1].Activity.ID != activity.ID {
			activity.Description = deref(description)
			activity.Schedule = deref(schedule)
			rosters = append(rosters, domain.ActivityRoster{Activity: activity, Participants: []string{}})
		}
		if email != nil {
			last := &rosters[len(rosters)-1]
			last.Participants = append(last.Participants, *email)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return rosters, nil
}

// FindActivityByName implements domain.Queries.
func (r *Repository) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	return r.queries().FindActivityByName(ctx, name)
}

// FindOrCreateUser implements domain.Queries.
func (r *Repository) FindOrCreateUser(ctx context.Context, email string) (*domain.User, error) {
	return r.queries().FindOrCreateUser(ctx, email)
}

// FindUser implements domain.Queries.
func (r *Repository) FindUser(ctx context.Context, email string) (*domain.User, error) {
	return r.queries().FindUser(ctx, email)
}

// CountParticipants implements domain.Queries.
func (r *Repository) CountParticipants(ctx context.Context, activityID int64) (int, error) {
	return r.queries().CountParticipants(ctx, activityID)
}

// HasParticipation implements domain.Queries.
func (r *Repository) HasParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	return r.queries().HasParticipation(ctx, userID, activityID)
}

// AddParticipation implements domain.Queries.
func (r *Repository) AddParticipation(ctx context.Context, userID, activityID int64) error {
	return r.Atomically(ctx, func(q domain.Queries) error {
		return q.AddParticipation(ctx, userID, activityID)
	})
}

// RemoveParticipation implements domain.Queries.
func (r *Repository) RemoveParticipation(ctx context.Context, userID, activityID int64) (removed bool, err error) {
	err = r.Atomically(ctx, func(q domain.Queries) error {
		removed, err = q.RemoveParticipation(ctx, userID, activityID)
		return err
	})
	return removed, err
}

func (r *Repository) queries() *queries {
	return &queries{db: r.pool}
}

type queries struct {
	db           dbtx
	lockActivity bool
	recordEvents bool
}

func (q *queries) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	query := `SELECT id, name, description, schedule, max_participants FROM activity WHERE name=$1`
	if q.lockActivity {
		query += ` FOR UPDATE`
	}

	var (
		activity    domain.Activity
		description *string
		schedule    *string
	)
	err := q.db.QueryRow(ctx, query, name).Scan(&activity.ID, &activity.Name, &description, &schedule, &activity.MaxParticipants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	activity.Description = deref(description)
	activity.Schedule = deref(schedule)
	return &activity, nil
}

func (q *queries) FindOrCreateUser(ctx context.Context, email string) (*domain.User, error) {
	const stmt = `INSERT INTO "user" (email) VALUES ($1)
        ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
        RETURNING id, email`

	var user domain.User
	if err := q.db.QueryRow(ctx, stmt, email).Scan(&user.ID, &user.Email); err != nil {
		return nil, unavailable(err)
	}
	return &user, nil
}

func (q *queries) FindUser(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := q.db.QueryRow(ctx, `SELECT id, email FROM "user" WHERE email=$1`, email).Scan(&user.ID, &user.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return &user, nil
}

func (q *queries) CountParticipants(ctx context.Context, activityID int64) (int, error) {
	var count int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM participant WHERE activity_id=$1`, activityID).Scan(&count); err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

func (q *queries) HasParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participant WHERE user_id=$1 AND activity_id=$2)`,
		userID, activityID,
	).Scan(&exists)
	if err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

func (q *queries) AddParticipation(ctx context.Context, userID, activityID int64) error {
	_, err := q.db.Exec(ctx, `INSERT INTO participant (user_id, activity_id) VALUES ($1,$2)`, userID, activityID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadySignedUp
		}
		return unavailable(err)
	}
	return q.insertOutbox(ctx, events.ParticipationCreated, userID, activityID)
}

func (q *queries) RemoveParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM participant WHERE user_id=$1 AND activity_id=$2`, userID, activityID)
	if err != nil {
		return false, unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, q.insertOutbox(ctx, events.ParticipationRemoved, userID, activityID)
}

func (q *queries) insertOutbox(ctx context.Context, eventType string, userID, activityID int64) error {
	if !q.recordEvents {
		return nil
	}

	payload := events.ParticipationChanged{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}
	err := q.db.QueryRow(ctx,
		`SELECT a.name, u.email FROM activity a, "user" u WHERE a.id=$1 AND u.id=$2`,
		activityID, userID,
	).Scan(&payload.Activity, &payload.Email)
	if err != nil {
		return unavailable(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO participation_outbox (event_id, event_type, topic, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err := q.db.Exec(ctx, stmt, payload.EventID, eventType, events.Topic, payload.Activity, body); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
