package domain

// Activity is an extracurricular offering. MaxParticipants is nil when the
// activity has no capacity limit.
type Activity struct {
	ID              int64
	Name            string
	Description     string
	Schedule        string
	MaxParticipants *int
}

// HasCapacityFor reports whether another participant fits given the current count.
func (a Activity) HasCapacityFor(current int) bool {
	if a.MaxParticipants == nil {
		return true
	}
	return current < *a.MaxParticipants
}

// User is a student identified by email.
type User struct {
	ID    int64
	Email string
}

// ActivityRoster pairs an activity with its participant emails in signup order.
type ActivityRoster struct {
	Activity     Activity
	Participants []string
}

// ActivityDetails is the externally visible shape of one activity.
type ActivityDetails struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants *int     `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// Capacity returns a pointer suitable for Activity.MaxParticipants.
func Capacity(n int) *int {
	return &n
}
