package features

import (
	"math"
	"testing"
	"time"

	"github.com/kalambet/edna/internal/dataset"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testTables() *dataset.Tables {
	return &dataset.Tables{
		Users: map[string]dataset.User{},
		Pairings: map[string]dataset.Pairing{
			"p001": {PairID: "p001", MentorID: "u1", MenteeID: "u2", ProgrammeID: "prog1", StartedAt: now.AddDate(0, 0, -60)},
			"p002": {PairID: "p002", MentorID: "u3", MenteeID: "u4", ProgrammeID: "missing", StartedAt: now.AddDate(0, 0, -30)},
		},
		Programmes: map[string]dataset.Programme{
			"prog1": {ProgrammeID: "prog1", Name: "Spring", CadenceDays: 10},
		},
	}
}

func TestCompute_UnknownPair(t *testing.T) {
	_, ok := Compute("nope", testTables(), now)
	if ok {
		t.Error("Compute should report false for an unknown pair")
	}
}

func TestCompute_CadenceFallback(t *testing.T) {
	f, ok := Compute("p002", testTables(), now)
	if !ok {
		t.Fatal("pair p002 should be known")
	}
	if f.CadenceDays != defaultCadenceDays {
		t.Errorf("CadenceDays = %d, want default %d for unknown programme", f.CadenceDays, defaultCadenceDays)
	}
}

func TestCompute_EmptyPair(t *testing.T) {
	f, ok := Compute("p001", testTables(), now)
	if !ok {
		t.Fatal("pair p001 should be known")
	}
	if f.HasAnyMessages {
		t.Error("HasAnyMessages = true on an empty pair")
	}
	if f.DaysSinceLastMessage != nil || f.DaysSinceLastCheckin != nil || f.DaysSinceGoalUpdateMax != nil {
		t.Error("optional signals should be nil when no events exist")
	}
	if f.MentorPct14d != 0 {
		t.Errorf("MentorPct14d = %v, want 0 for empty window", f.MentorPct14d)
	}
	if math.Abs(f.PairStartedDaysAgo-60) > 1e-9 {
		t.Errorf("PairStartedDaysAgo = %v, want 60", f.PairStartedDaysAgo)
	}
}

func TestCompute_MessageSignals(t *testing.T) {
	tables := testTables()
	tables.Messages = []dataset.Message{
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -20), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelEmail},
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -5), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelInApp},
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -3), AuthorRole: dataset.RoleMentor, Channel: dataset.ChannelInApp},
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -2), AuthorRole: dataset.RoleMentee, Channel: dataset.ChannelInApp},
		{PairID: "p002", Timestamp: now.AddDate(0, 0, -1), AuthorRole: dataset.RoleMentee, Channel: dataset.ChannelInApp},
	}

	f, _ := Compute("p001", tables, now)
	if !f.HasAnyMessages {
		t.Fatal("HasAnyMessages = false")
	}
	if f.DaysSinceLastMessage == nil || math.Abs(*f.DaysSinceLastMessage-2) > 1e-9 {
		t.Errorf("DaysSinceLastMessage = %v, want 2", f.DaysSinceLastMessage)
	}
	// The 20-day-old message falls outside the window.
	if f.MsgCount14d != 3 {
		t.Errorf("MsgCount14d = %d, want 3", f.MsgCount14d)
	}
	if f.MentorMsgs14d != 2 || f.MenteeMsgs14d != 1 {
		t.Errorf("mentor/mentee counts = %d/%d, want 2/1", f.MentorMsgs14d, f.MenteeMsgs14d)
	}
	if math.Abs(f.MentorPct14d-2.0/3.0) > 1e-9 {
		t.Errorf("MentorPct14d = %v, want 2/3", f.MentorPct14d)
	}
}

func TestCompute_FractionalDays(t *testing.T) {
	tables := testTables()
	tables.Messages = []dataset.Message{
		{PairID: "p001", Timestamp: now.Add(-36 * time.Hour), AuthorRole: dataset.RoleMentee, Channel: dataset.ChannelInApp},
	}

	f, _ := Compute("p001", tables, now)
	if f.DaysSinceLastMessage == nil || math.Abs(*f.DaysSinceLastMessage-1.5) > 1e-9 {
		t.Errorf("DaysSinceLastMessage = %v, want fractional 1.5", f.DaysSinceLastMessage)
	}
}

func TestCompute_GoalSignals(t *testing.T) {
	tables := testTables()
	tables.Goals = []dataset.Goal{
		{PairID: "p001", GoalID: "g1", Status: dataset.GoalOpen, UpdatedAt: now.AddDate(0, 0, -40)},
		{PairID: "p001", GoalID: "g2", Status: dataset.GoalBlocked, UpdatedAt: now.AddDate(0, 0, -35)},
		{PairID: "p001", GoalID: "g3", Status: dataset.GoalAtRisk, UpdatedAt: now.AddDate(0, 0, -30)},
		{PairID: "p001", GoalID: "g4", Status: dataset.GoalCompleted, UpdatedAt: now.AddDate(0, 0, -1)},
	}

	f, _ := Compute("p001", tables, now)
	if f.GoalsOpen != 3 {
		t.Errorf("GoalsOpen = %d, want 3 (open, blocked, at_risk)", f.GoalsOpen)
	}
	if f.GoalsBlocked != 2 {
		t.Errorf("GoalsBlocked = %d, want 2 (blocked, at_risk)", f.GoalsBlocked)
	}
	// Delta from the most recently updated non-completed goal.
	if f.DaysSinceGoalUpdateMax == nil || math.Abs(*f.DaysSinceGoalUpdateMax-30) > 1e-9 {
		t.Errorf("DaysSinceGoalUpdateMax = %v, want 30", f.DaysSinceGoalUpdateMax)
	}
}

func TestCompute_CheckinSignal(t *testing.T) {
	tables := testTables()
	tables.Checkins = []dataset.Checkin{
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -25), MenteeScore: 3, MentorScore: 3},
		{PairID: "p001", Timestamp: now.AddDate(0, 0, -12), MenteeScore: 4, MentorScore: 4},
	}

	f, _ := Compute("p001", tables, now)
	if f.DaysSinceLastCheckin == nil || math.Abs(*f.DaysSinceLastCheckin-12) > 1e-9 {
		t.Errorf("DaysSinceLastCheckin = %v, want 12", f.DaysSinceLastCheckin)
	}
}
