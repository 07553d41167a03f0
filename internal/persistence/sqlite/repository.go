// Package sqlite provides the SQLite-backed activity repository. It is the
// default persistent store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

// Backend is the name reported for this repository.
const Backend = "sqlite"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists activities in SQLite. The pool must be limited to a
// single connection (Open does this) so transactions never interleave.
type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs a Repository over an opened database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Backend implements domain.Repository.
func (r *Repository) Backend() string { return Backend }

// DB exposes the underlying sql.DB.
func (r *Repository) DB() *sql.DB { return r.db }

// Atomically runs fn inside one transaction.
func (r *Repository) Atomically(ctx context.Context, fn func(q domain.Queries) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(queries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
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

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()

	rosters := make([]domain.ActivityRoster, 0)
	for rows.Next() {
		var (
			id          int64
			name        string
			description sql.NullString
			schedule    sql.NullString
			capacity    sql.NullInt64
			email       sql.NullString
		)
		if err := rows.Scan(&id, &name, &description, &schedule, &capacity, &email); err != nil {
			return nil, unavailable(err)
		}
		if n := len(rosters); n == 0 || rosters[n-1].Activity.ID != id {
			rosters = append(rosters, domain.ActivityRoster{
				Activity:     toActivity(id, name, description, schedule, capacity),
				Participants: []string{},
			})
		}
		if email.Valid {
			last := &rosters[len(rosters)-1]
			last.Participants = append(last.Participants, email.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return rosters, nil
}

// FindActivityByName implements domain.Queries.
func (r *Repository) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	return queries{db: r.db}.FindActivityByName(ctx, name)
}

// FindOrCreateUser implements domain.Queries.
func (r *Repository) FindOrCreateUser(ctx context.Context, email string) (*domain.User, error) {
	return queries{db: r.db}.FindOrCreateUser(ctx, email)
}

// FindUser implements domain.Queries.
func (r *Repository) FindUser(ctx context.Context, email string) (*domain.User, error) {
	return queries{db: r.db}.FindUser(ctx, email)
}

// CountParticipants implements domain.Queries.
func (r *Repository) CountParticipants(ctx context.Context, activityID int64) (int, error) {
	return queries{db: r.db}.CountParticipants(ctx, activityID)
}

// HasParticipation implements domain.Queries.
func (r *Repository) HasParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	return queries{db: r.db}.HasParticipation(ctx, userID, activityID)
}

// AddParticipation implements domain.Queries.
func (r *Repository) AddParticipation(ctx context.Context, userID, activityID int64) error {
	return queries{db: r.db}.AddParticipation(ctx, userID, activityID)
}

// RemoveParticipation implements domain.Queries.
func (r *Repository) RemoveParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	return queries{db: r.db}.RemoveParticipation(ctx, userID, activityID)
}

type queries struct {
	db dbtx
}

func (q queries) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	var (
		id          int64
		description sql.NullString
		schedule    sql.NullString
		capacity    sql.NullInt64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, description, schedule, max_participants FROM activity WHERE name = ?`, name,
	).Scan(&id, &description, &schedule, &capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	activity := toActivity(id, name, description, schedule, capacity)
	return &activity, nil
}

func (q queries) FindOrCreateUser(ctx context.Context, email string) (*domain.User, error) {
	if _, err := q.db.ExecContext(ctx, `INSERT INTO "user" (email) VALUES (?) ON CONFLICT (email) DO NOTHING`, email); err != nil {
		return nil, unavailable(err)
	}
	user, err := q.FindUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, unavailable(fmt.Errorf("user %q missing after insert", email))
	}
	return user, nil
}

func (q queries) FindUser(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := q.db.QueryRowContext(ctx, `SELECT id, email FROM "user" WHERE email = ?`, email).Scan(&user.ID, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return &user, nil
}

func (q queries) CountParticipants(ctx context.Context, activityID int64) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participant WHERE activity_id = ?`, activityID).Scan(&count); err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

func (q queries) HasParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM participant WHERE user_id = ? AND activity_id = ?)`,
		userID, activityID,
	).Scan(&exists)
	if err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

func (q queries) AddParticipation(ctx context.Context, userID, activityID int64) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO participant (user_id, activity_id) VALUES (?, ?)`, userID, activityID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySignedUp
		}
		return unavailable(err)
	}
	return nil
}

func (q queries) RemoveParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM participant WHERE user_id = ? AND activity_id = ?`, userID, activityID)
	if err != nil {
		return false, unavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return affected > 0, nil
}

func toActivity(id int64, name string, description, schedule sql.NullString, capacity sql.NullInt64) domain.Activity {
	activity := domain.Activity{
		ID:          id,
		Name:        name,
		Description: description.String,
		Schedule:    schedule.String,
	}
	if capacity.Valid {
		activity.MaxParticipants = domain.Capacity(int(capacity.Int64))
	}
	return activity
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
