package dataset

import "time"

// Role identifies who authored a message or holds an account.
type Role string

const (
	RoleMentor Role = "mentor"
	RoleMentee Role = "mentee"
	RoleAdmin  Role = "admin"
)

// Channel is a delivery channel for messages and nudges.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// GoalStatus is the lifecycle state of a mentoring goal. It mutates over
// external time, never by this system.
type GoalStatus string

const (
	GoalOpen      GoalStatus = "open"
	GoalAtRisk    GoalStatus = "at_risk"
	GoalBlocked   GoalStatus = "blocked"
	GoalCompleted GoalStatus = "completed"
)

// User is a programme participant. Role is fixed at creation.
type User struct {
	UserID    string
	Role      Role
	Email     string
	Timezone  string // IANA zone name, may be empty
	FirstName string
	JoinedAt  time.Time
}

// Pairing is one active mentor-mentee relationship under a programme.
type Pairing struct {
	PairID      string
	MentorID    string
	MenteeID    string
	ProgrammeID string
	StartedAt   time.Time
}

// Message is an append-only conversation event for a pair.
type Message struct {
	PairID     string
	Timestamp  time.Time
	AuthorRole Role
	Channel    Channel
	Text       string
}

// Checkin is an append-only scored check-in event for a pair.
// Scores are on a 1-5 scale.
type Checkin struct {
	PairID      string
	Timestamp   time.Time
	MenteeScore int
	MentorScore int
	Notes       string
}

// Goal is a mentoring goal tracked for a pair.
type Goal struct {
	PairID    string
	GoalID    string
	Title     string
	Status    GoalStatus
	UpdatedAt time.Time
}

// Programme defines the expected check-in cadence for its pairings.
type Programme struct {
	ProgrammeID    string   `json:"programme_id"`
	Name           string   `json:"name"`
	CadenceDays    int      `json:"cadence_days"`
	SuccessMarkers []string `json:"success_markers"`
}

// Tip is a static knowledge base entry used for retrieval.
type Tip struct {
	TipID     string `json:"tip_id"`
	Situation string `json:"situation"`
	Text      string `json:"text"`
}

// Tables holds all loaded data, keyed by id where the entity has one.
// Immutable once loaded.
type Tables struct {
	Users      map[string]User
	Pairings   map[string]Pairing
	Messages   []Message
	Checkins   []Checkin
	Goals      []Goal
	Programmes map[string]Programme
	Tips       []Tip
}

// PairMessages returns all messages for the given pair in load order.
func (t *Tables) PairMessages(pairID string) []Message {
	var out []Message
	for _, m := range t.Messages {
		if m.PairID == pairID {
			out = append(out, m)
		}
	}
	return out
}

// PairCheckins returns all check-ins for the given pair in load order.
func (t *Tables) PairCheckins(pairID string) []Checkin {
	var out []Checkin
	for _, c := range t.Checkins {
		if c.PairID == pairID {
			out = append(out, c)
		}
	}
	return out
}

// PairGoals returns all goals for the given pair in load order.
func (t *Tables) PairGoals(pairID string) []Goal {
	var out []Goal
	for _, g := range t.Goals {
		if g.PairID == pairID {
			out = append(out, g)
		}
	}
	return out
}

// TipByID returns the tip with the given id, or false if absent.
func (t *Tables) TipByID(tipID string) (Tip, bool) {
	for _, tip := range t.Tips {
		if tip.TipID == tipID {
			return tip, true
		}
	}
	return Tip{}, false
}

func validRole(r Role) bool {
	switch r {
	case RoleMentor, RoleMentee, RoleAdmin:
		return true
	}
	return false
}

func validChannel(c Channel) bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSlack:
		return true
	}
	return false
}

func validGoalStatus(s GoalStatus) bool {
	switch s {
	case GoalOpen, GoalAtRisk, GoalBlocked, GoalCompleted:
		return true
	}
	return false
}
