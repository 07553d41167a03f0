package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

func TestNewRepositorySeedsNineActivities(t *testing.T) {
	repo := NewRepository()

	rosters, err := repo.ListActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, rosters, 9)
	for _, roster := range rosters {
		assert.Len(t, roster.Participants, 2, roster.Activity.Name)
	}
	assert.Equal(t, "Debate Team", rosters[8].Activity.Name)
}

func TestListActivitiesReturnsCopies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	rosters, err := repo.ListActivities(ctx)
	require.NoError(t, err)
	*rosters[0].Activity.MaxParticipants = 1
	rosters[0].Participants[0] = "mutated@mergington.edu"

	activity, err := repo.FindActivityByName(ctx, "Chess Club")
	require.NoError(t, err)
	assert.Equal(t, 12, *activity.MaxParticipants)

	again, err := repo.ListActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, "michael@mergington.edu", again[0].Participants[0])
}

func TestParticipationLifecycle(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	activity, err := repo.FindActivityByName(ctx, "Soccer Team")
	require.NoError(t, err)
	user, err := repo.FindOrCreateUser(ctx, "keeper@mergington.edu")
	require.NoError(t, err)

	has, err := repo.HasParticipation(ctx, user.ID, activity.ID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.AddParticipation(ctx, user.ID, activity.ID))
	require.ErrorIs(t, repo.AddParticipation(ctx, user.ID, activity.ID), domain.ErrAlreadySignedUp)

	count, err := repo.CountParticipants(ctx, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	removed, err := repo.RemoveParticipation(ctx, user.ID, activity.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveParticipation(ctx, user.ID, activity.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFindUserDoesNotCreate(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	user, err := repo.FindUser(ctx, "nobody@mergington.edu")
	require.NoError(t, err)
	assert.Nil(t, user)

	created, err := repo.FindOrCreateUser(ctx, "nobody@mergington.edu")
	require.NoError(t, err)
	again, err := repo.FindOrCreateUser(ctx, "nobody@mergington.edu")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestAtomicallyHonoursCancelledContext(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.Atomically(ctx, func(domain.Queries) error {
		called = true
		return nil
	})
	require.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}
