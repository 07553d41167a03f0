// Package domain defines the business logic for the activity sign-up service.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/observability"
)

var (
	// ErrStoreUnavailable wraps any failure to reach or use the backing store.
	ErrStoreUnavailable = errors.New("activity store unavailable")
	// ErrActivityNotFound is returned when no activity has the requested name.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrAlreadySignedUp is returned when the student already holds a spot.
	ErrAlreadySignedUp = errors.New("student is already signed up")
	// ErrActivityFull is returned when the activity has reached max_participants.
	ErrActivityFull = errors.New("activity is full")
	// ErrNotSignedUp is returned when unregistering a student without a spot.
	ErrNotSignedUp = errors.New("student is not signed up for this activity")
)

// Queries captures the lookups and writes a signup or unregister is built from.
// Lookups return nil without error when the row does not exist.
type Queries interface {
	FindActivityByName(ctx context.Context, name string) (*Activity, error)
	FindOrCreateUser(ctx context.Context, email string) (*User, error)
	FindUser(ctx context.Context, email string) (*User, error)
	CountParticipants(ctx context.Context, activityID int64) (int, error)
	HasParticipation(ctx context.Context, userID, activityID int64) (bool, error)
	AddParticipation(ctx context.Context, userID, activityID int64) error
	RemoveParticipation(ctx context.Context, userID, activityID int64) (bool, error)
}

// Repository captures persistence operations. Atomically runs fn against a
// view whose reads and writes form one unit with respect to other callers of
// Atomically; if fn returns an error nothing it wrote is kept where the
// backend supports rollback.
type Repository interface {
	Queries
	ListActivities(ctx context.Context) ([]ActivityRoster, error)
	Atomically(ctx context.Context, fn func(q Queries) error) error
	Backend() string
}

// Service orchestrates activity workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Backend names the repository implementation serving requests.
func (s *Service) Backend() string {
	return s.repo.Backend()
}

// ListActivities returns every activity keyed by name.
func (s *Service) ListActivities(ctx context.Context) (map[string]ActivityDetails, error) {
	rosters, err := s.repo.ListActivities(ctx)
	observability.RecordOperation("list", outcomeFor(err))
	if err != nil {
		return nil, err
	}

	out := make(map[string]ActivityDetails, len(rosters))
	for _, roster := range rosters {
		participants := roster.Participants
		if participants == nil {
			participants = []string{}
		}
		out[roster.Activity.Name] = ActivityDetails{
			Description:     roster.Activity.Description,
			Schedule:        roster.Activity.Schedule,
			MaxParticipants: roster.Activity.MaxParticipants,
			Participants:    participants,
		}
	}
	return out, nil
}

// SignUp registers email for the named activity and returns a confirmation message.
func (s *Service) SignUp(ctx context.Context, activityName, email string) (string, error) {
	err := s.repo.Atomically(ctx, func(q Queries) error {
		activity, err := q.FindActivityByName(ctx, activityName)
		if err != nil {
			return err
		}
		if activity == nil {
			return ErrActivityNotFound
		}

		user, err := q.FindOrCreateUser(ctx, email)
		if err != nil {
			return err
		}

		exists, err := q.HasParticipation(ctx, user.ID, activity.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadySignedUp
		}

		count, err := q.CountParticipants(ctx, activity.ID)
		if err != nil {
			return err
		}
		if !activity.HasCapacityFor(count) {
			return ErrActivityFull
		}

		return q.AddParticipation(ctx, user.ID, activity.ID)
	})
	observability.RecordOperation("signup", outcomeFor(err))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Signed up %s for %s", email, activityName), nil
}

// Unregister removes email from the named activity and returns a confirmation message.
func (s *Service) Unregister(ctx context.Context, activityName, email string) (string, error) {
	err := s.repo.Atomically(ctx, func(q Queries) error {
		activity, err := q.FindActivityByName(ctx, activityName)
		if err != nil {
			return err
		}
		if activity == nil {
			return ErrActivityNotFound
		}

		user, err := q.FindUser(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotSignedUp
		}

		removed, err := q.RemoveParticipation(ctx, user.ID, activity.ID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNotSignedUp
		}
		return nil
	})
	observability.RecordOperation("unregister", outcomeFor(err))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Unregistered %s from %s", email, activityName), nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrActivityNotFound):
		return "activity_not_found"
	case errors.Is(err, ErrAlreadySignedUp):
		return "already_signed_up"
	case errors.Is(err, ErrActivityFull):
		return "activity_full"
	case errors.Is(err, ErrNotSignedUp):
		return "not_signed_up"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
