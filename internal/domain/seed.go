package domain

// SeedActivity is one entry of the initial activity table.
type SeedActivity struct {
	Activity     Activity
	Participants []string
}

// SeedActivities returns the Mergington High School activities every store
// starts from. A fresh slice is returned on each call.
func SeedActivities() []SeedActivity {
	return []SeedActivity{
		{
			Activity: Activity{
				Name:            "Chess Club",
				Description:     "Learn strategies and compete in chess tournaments",
				Schedule:        "Fridays, 3:30 PM - 5:00 PM",
				MaxParticipants: Capacity(12),
			},
			Participants: []string{"michael@mergington.edu", "daniel@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Programming Class",
				Description:     "Learn programming fundamentals and build software projects",
				Schedule:        "Tuesdays and Thursdays, 3:30 PM - 4:30 PM",
				MaxParticipants: Capacity(20),
			},
			Participants: []string{"emma@mergington.edu", "sophia@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Gym Class",
				Description:     "Physical education and sports activities",
				Schedule:        "Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM",
				MaxParticipants: Capacity(30),
			},
			Participants: []string{"john@mergington.edu", "olivia@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Soccer Team",
				Description:     "Join the school soccer team and compete in matches",
				Schedule:        "Tuesdays and Thursdays, 4:00 PM - 5:30 PM",
				MaxParticipants: Capacity(22),
			},
			Participants: []string{"liam@mergington.edu", "noah@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Basketball Team",
				Description:     "Practice and play basketball with the school team",
				Schedule:        "Wednesdays and Fridays, 3:30 PM - 5:00 PM",
				MaxParticipants: Capacity(15),
			},
			Participants: []string{"ava@mergington.edu", "mia@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Art Club",
				Description:     "Explore your creativity through painting and drawing",
				Schedule:        "Thursdays, 3:30 PM - 5:00 PM",
				MaxParticipants: Capacity(15),
			},
			Participants: []string{"amelia@mergington.edu", "harper@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Drama Club",
				Description:     "Act, direct, and produce plays and performances",
				Schedule:        "Mondays and Wednesdays, 4:00 PM - 5:30 PM",
				MaxParticipants: Capacity(20),
			},
			Participants: []string{"ella@mergington.edu", "scarlett@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Math Club",
				Description:     "Solve challenging problems and participate in math competitions",
				Schedule:        "Tuesdays, 3:30 PM - 4:30 PM",
				MaxParticipants: Capacity(10),
			},
			Participants: []string{"james@mergington.edu", "benjamin@mergington.edu"},
		},
		{
			Activity: Activity{
				Name:            "Debate Team",
				Description:     "Develop public speaking and argumentation skills",
				Schedule:        "Fridays, 4:00 PM - 5:30 PM",
				MaxParticipants: Capacity(12),
			},
			Participants: []string{"charlotte@mergington.edu", "henry@mergington.edu"},
		},
	}
}
