package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Open connects to Postgres and verifies the server answers a ping.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}
	return pool, nil
}

// Migrate applies the embedded schema and seeds the activity table when it is empty.
func Migrate(ctx context.Context, pool *pgxpool.Pool, seed []domain.SeedActivity) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := migrationFiles.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return unavailable(fmt.Errorf("apply %s: %w", name, err))
		}
	}

	return seedActivities(ctx, pool, seed)
}

func seedActivities(ctx context.Context, pool *pgxpool.Pool, seed []domain.SeedActivity) (err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// Concurrent starters wait here instead of seeding twice.
	if _, err = tx.Exec(ctx, `LOCK TABLE activity IN EXCLUSIVE MODE`); err != nil {
		return unavailable(err)
	}

	var populated bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activity)`).Scan(&populated); err != nil {
		return unavailable(err)
	}
	if populated {
		return tx.Commit(ctx)
	}

	q := &queries{db: tx}
	for _, entry := range seed {
		var activityID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO activity (name, description, schedule, max_participants) VALUES ($1,$2,$3,$4) RETURNING id`,
			entry.Activity.Name, entry.Activity.Description, entry.Activity.Schedule, entry.Activity.MaxParticipants,
		).Scan(&activityID)
		if err != nil {
			return unavailable(err)
		}

		for _, email := range entry.Participants {
			user, userErr := q.FindOrCreateUser(ctx, email)
			if userErr != nil {
				err = userErr
				return err
			}
			if _, err = tx.Exec(ctx,
				`INSERT INTO participant (user_id, activity_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
				user.ID, activityID,
			); err != nil {
				return unavailable(err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
