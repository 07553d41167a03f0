// Package memory provides the in-process activity table used when no
// persistent store is reachable.
package memory

import (
	"context"
	"sync"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

// Backend is the name reported for this repository.
const Backend = "memory"

type participation struct {
	userID     int64
	activityID int64
}

// table is the unguarded state; every access goes through Repository.mu.
type table struct {
	activities     []domain.Activity
	activityByName map[string]int
	users          map[string]domain.User
	emailByID      map[int64]string
	participants   []participation
	nextActivityID int64
	nextUserID     int64
}

// Repository stores activities, users and participations in memory.
type Repository struct {
	mu    sync.Mutex
	state table
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs a repository populated with the seed activities.
func NewRepository() *Repository {
	return NewRepositoryWith(domain.SeedActivities())
}

// NewRepositoryWith constructs a repository populated with the provided activities.
func NewRepositoryWith(seed []domain.SeedActivity) *Repository {
	repo := &Repository{
		state: table{
			activityByName: make(map[string]int),
			users:          make(map[string]domain.User),
			emailByID:      make(map[int64]string),
		},
	}
	for _, entry := range seed {
		activity := repo.state.addActivity(entry.Activity)
		for _, email := range entry.Participants {
			user := repo.state.findOrCreateUser(email)
			if !repo.state.hasParticipation(user.ID, activity.ID) {
				repo.state.participants = append(repo.state.participants, participation{userID: user.ID, activityID: activity.ID})
			}
		}
	}
	return repo
}

// Backend implements domain.Repository.
func (r *Repository) Backend() string { return Backend }

// Atomically runs fn while holding the table lock.
func (r *Repository) Atomically(ctx context.Context, fn func(q domain.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&r.state)
}

// ListActivities returns activities in insertion order with their participants.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.ActivityRoster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rosters := make([]domain.ActivityRoster, 0, len(r.state.activities))
	index := make(map[int64]int, len(r.state.activities))
	for i, activity := range r.state.activities {
		index[activity.ID] = i
		rosters = append(rosters, domain.ActivityRoster{Activity: copyActivity(activity), Participants: []string{}})
	}
	for _, p := range r.state.participants {
		i := index[p.activityID]
		rosters[i].Participants = append(rosters[i].Participants, r.state.emailByID[p.userID])
	}
	return rosters, nil
}

// FindActivityByName implements domain.Queries.
func (r *Repository) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.FindActivityByName(ctx, name)
}

// FindOrCreateUser implements domain.Queries.
func (r *Repository) FindOrCreateUser(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.FindOrCreateUser(ctx, email)
}

// FindUser implements domain.Queries.
func (r *Repository) FindUser(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.FindUser(ctx, email)
}

// CountParticipants implements domain.Queries.
func (r *Repository) CountParticipants(ctx context.Context, activityID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.CountParticipants(ctx, activityID)
}

// HasParticipation implements domain.Queries.
func (r *Repository) HasParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.HasParticipation(ctx, userID, activityID)
}

// AddParticipation implements domain.Queries.
func (r *Repository) AddParticipation(ctx context.Context, userID, activityID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.AddParticipation(ctx, userID, activityID)
}

// RemoveParticipation implements domain.Queries.
func (r *Repository) RemoveParticipation(ctx context.Context, userID, activityID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RemoveParticipation(ctx, userID, activityID)
}

func (t *table) FindActivityByName(_ context.Context, name string) (*domain.Activity, error) {
	i, ok := t.activityByName[name]
	if !ok {
		return nil, nil
	}
	activity := copyActivity(t.activities[i])
	return &activity, nil
}

func (t *table) FindOrCreateUser(_ context.Context, email string) (*domain.User, error) {
	user := t.findOrCreateUser(email)
	return &user, nil
}

func (t *table) FindUser(_ context.Context, email string) (*domain.User, error) {
	user, ok := t.users[email]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (t *table) CountParticipants(_ context.Context, activityID int64) (int, error) {
	count := 0
	for _, p := range t.participants {
		if p.activityID == activityID {
			count++
		}
	}
	return count, nil
}

func (t *table) HasParticipation(_ context.Context, userID, activityID int64) (bool, error) {
	return t.hasParticipation(userID, activityID), nil
}

func (t *table) AddParticipation(_ context.Context, userID, activityID int64) error {
	if t.hasParticipation(userID, activityID) {
		return domain.ErrAlreadySignedUp
	}
	t.participants = append(t.participants, participation{userID: userID, activityID: activityID})
	return nil
}

func (t *table) RemoveParticipation(_ context.Context, userID, activityID int64) (bool, error) {
	for i, p := range t.participants {
		if p.userID == userID && p.activityID == activityID {
			t.participants = append(t.participants[:i], t.participants[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *table) addActivity(activity domain.Activity) domain.Activity {
	if i, ok := t.activityByName[activity.Name]; ok {
		return t.activities[i]
	}
	t.nextActivityID++
	activity.ID = t.nextActivityID
	activity = copyActivity(activity)
	t.activityByName[activity.Name] = len(t.activities)
	t.activities = append(t.activities, activity)
	return activity
}

func (t *table) findOrCreateUser(email string) domain.User {
	if user, ok := t.users[email]; ok {
		return user
	}
	t.nextUserID++
	user := domain.User{ID: t.nextUserID, Email: email}
	t.users[email] = user
	t.emailByID[user.ID] = email
	return user
}

func (t *table) hasParticipation(userID, activityID int64) bool {
	for _, p := range t.participants {
		if p.userID == userID && p.activityID == activityID {
			return true
		}
	}
	return false
}

func copyActivity(a domain.Activity) domain.Activity {
	if a.MaxParticipants != nil {
		a.MaxParticipants = domain.Capacity(*a.MaxParticipants)
	}
	return a
}
