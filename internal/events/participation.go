// Package events defines the payloads published when a roster changes.
package events

import "time"

const (
	// ParticipationCreated is emitted after a successful signup.
	ParticipationCreated = "participation.created"
	// ParticipationRemoved is emitted after a successful unregister.
	ParticipationRemoved = "participation.removed"
	// Topic receives every participation event, keyed by activity name.
	Topic = "activity_participation"
)

// ParticipationChanged records one signup or unregister.
type ParticipationChanged struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Activity   string    `json:"activity"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}
