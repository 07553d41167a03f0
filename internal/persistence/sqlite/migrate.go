package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		schedule TEXT,
		max_participants INTEGER CHECK (max_participants IS NULL OR max_participants > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS "user" (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS participant (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES "user"(id),
		activity_id INTEGER NOT NULL REFERENCES activity(id),
		UNIQUE (user_id, activity_id)
	)`,
	`CREATE INDEX IF NOT EXISTS participant_activity_idx ON participant (activity_id)`,
}

// Open opens (creating if needed) the database at path and verifies it responds.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "data.db"
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, unavailable(fmt.Errorf("create dirs: %w", err))
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable(fmt.Errorf("open sqlite: %w", err))
	}
	// One connection serialises transactions and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(fmt.Errorf("ping sqlite: %w", err))
	}
	return db, nil
}

// Migrate creates the schema and seeds the activity table when it is empty.
func Migrate(ctx context.Context, db *sql.DB, seed []domain.SeedActivity) (err error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return unavailable(fmt.Errorf("apply schema: %w", err))
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var populated bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM activity)`).Scan(&populated); err != nil {
		return unavailable(err)
	}
	if populated {
		return tx.Commit()
	}

	q := queries{db: tx}
	for _, entry := range seed {
		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO activity (name, description, schedule, max_participants) VALUES (?, ?, ?, ?)`,
			entry.Activity.Name, entry.Activity.Description, entry.Activity.Schedule, capacityArg(entry.Activity.MaxParticipants),
		)
		if execErr != nil {
			err = unavailable(execErr)
			return err
		}
		activityID, idErr := res.LastInsertId()
		if idErr != nil {
			err = unavailable(idErr)
			return err
		}

		for _, email := range entry.Participants {
			user, userErr := q.FindOrCreateUser(ctx, email)
			if userErr != nil {
				err = userErr
				return err
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO participant (user_id, activity_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				user.ID, activityID,
			); err != nil {
				err = unavailable(err)
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func capacityArg(capacity *int) any {
	if capacity == nil {
		return nil
	}
	return *capacity
}
