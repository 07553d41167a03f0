package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

func newTestRepository(t *testing.T, seed []domain.SeedActivity) *Repository {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "activities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, seed))
	return NewRepository(db)
}

func TestMigrateSeedsOnlyEmptyStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "activities.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, domain.SeedActivities()))

	repo := NewRepository(db)
	user, err := repo.FindOrCreateUser(ctx, "new@mergington.edu")
	require.NoError(t, err)
	activity, err := repo.FindActivityByName(ctx, "Math Club")
	require.NoError(t, err)
	require.NoError(t, repo.AddParticipation(ctx, user.ID, activity.ID))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, domain.SeedActivities()))

	rosters, err := NewRepository(db).ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, rosters, 9)

	var math domain.ActivityRoster
	for _, roster := range rosters {
		if roster.Activity.Name == "Math Club" {
			math = roster
		}
	}
	assert.Equal(t, []string{"james@mergington.edu", "benjamin@mergington.edu", "new@mergington.edu"}, math.Participants)
	require.NotNil(t, math.Activity.MaxParticipants)
	assert.Equal(t, 10, *math.Activity.MaxParticipants)
}

func TestListActivitiesPreservesInsertionOrder(t *testing.T) {
	repo := newTestRepository(t, domain.SeedActivities())

	rosters, err := repo.ListActivities(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(rosters))
	for _, roster := range rosters {
		names = append(names, roster.Activity.Name)
	}
	assert.Equal(t, []string{
		"Chess Club", "Programming Class", "Gym Class", "Soccer Team", "Basketball Team",
		"Art Club", "Drama Club", "Math Club", "Debate Team",
	}, names)
}

func TestUnboundedActivityHasNilCapacity(t *testing.T) {
	repo := newTestRepository(t, []domain.SeedActivity{{
		Activity: domain.Activity{Name: "Open Library", Description: "Quiet reading", Schedule: "Daily"},
	}})

	activity, err := repo.FindActivityByName(context.Background(), "Open Library")
	require.NoError(t, err)
	require.NotNil(t, activity)
	assert.Nil(t, activity.MaxParticipants)
	assert.True(t, activity.HasCapacityFor(1000))

	rosters, err := repo.ListActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, rosters, 1)
	assert.Empty(t, rosters[0].Participants)
	assert.NotNil(t, rosters[0].Participants)
}

func TestQueriesReportMissingRowsWithoutError(t *testing.T) {
	repo := newTestRepository(t, domain.SeedActivities())
	ctx := context.Background()

	activity, err := repo.FindActivityByName(ctx, "Knitting Club")
	require.NoError(t, err)
	assert.Nil(t, activity)

	user, err := repo.FindUser(ctx, "ghost@mergington.edu")
	require.NoError(t, err)
	assert.Nil(t, user)

	removed, err := repo.RemoveParticipation(ctx, 999, 1)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFindOrCreateUserIsIdempotent(t *testing.T) {
	repo := newTestRepository(t, domain.SeedActivities())
	ctx := context.Background()

	first, err := repo.FindOrCreateUser(ctx, "lily@mergington.edu")
	require.NoError(t, err)
	second, err := repo.FindOrCreateUser(ctx, "lily@mergington.edu")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	seeded, err := repo.FindUser(ctx, "michael@mergington.edu")
	require.NoError(t, err)
	require.NotNil(t, seeded)
}

func TestAddParticipationRejectsDuplicatePair(t *testing.T) {
	repo := newTestRepository(t, domain.SeedActivities())
	ctx := context.Background()

	user, err := repo.FindUser(ctx, "michael@mergington.edu")
	require.NoError(t, err)
	activity, err := repo.FindActivityByName(ctx, "Chess Club")
	require.NoError(t, err)

	err = repo.AddParticipation(ctx, user.ID, activity.ID)
	require.ErrorIs(t, err, domain.ErrAlreadySignedUp)

	count, err := repo.CountParticipants(ctx, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	repo := newTestRepository(t, domain.SeedActivities())
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Atomically(ctx, func(q domain.Queries) error {
		if _, err := q.FindOrCreateUser(ctx, "rollback@mergington.edu"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	user, err := repo.FindUser(ctx, "rollback@mergington.edu")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDriverFailureIsStoreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT a.id, a.name").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectQuery("SELECT id, description, schedule, max_participants FROM activity").
		WithArgs("Chess Club").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	repo := NewRepository(db)
	ctx := context.Background()

	_, err = repo.ListActivities(ctx)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = repo.FindActivityByName(ctx, "Chess Club")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = repo.Atomically(ctx, func(domain.Queries) error { return nil })
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicallyCommitsThroughMockedTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM participant").
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewRepository(db)
	ctx := context.Background()

	var removed bool
	err = repo.Atomically(ctx, func(q domain.Queries) error {
		var err error
		removed, err = q.RemoveParticipation(ctx, 3, 7)
		return err
	})
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
