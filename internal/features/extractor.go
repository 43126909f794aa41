// Package features derives per-pair engagement signals from loaded tables.
// Features are recomputed fresh each run and never persisted.
package features

import (
	"time"

	"github.com/kalambet/edna/internal/dataset"
)

// defaultCadenceDays applies when a pairing references an unknown programme.
const defaultCadenceDays = 14

// recentWindowDays is the trailing window for message balance signals.
const recentWindowDays = 14

// Features is the derived signal record for one pair. Day deltas are
// fractional (elapsed seconds / 86400), not calendar-day truncation.
// Nil pointers mean the signal is absent (no events of that kind exist).
type Features struct {
	PairID                 string
	DaysSinceLastMessage   *float64
	DaysSinceLastCheckin   *float64
	MsgCount14d            int
	MentorMsgs14d          int
	MenteeMsgs14d          int
	MentorPct14d           float64 // in [0,1]
	GoalsOpen              int     // open, at_risk or blocked
	GoalsBlocked           int     // blocked or at_risk
	DaysSinceGoalUpdateMax *float64
	CadenceDays            int
	PairStartedDaysAgo     float64
	HasAnyMessages         bool
}

// Compute derives Features for pairID relative to now. Returns false if the
// pair is unknown.
func Compute(pairID string, tables *dataset.Tables, now time.Time) (Features, bool) {
	pairing, ok := tables.Pairings[pairID]
	if !ok {
		return Features{}, false
	}

	cadence := defaultCadenceDays
	if prog, ok := tables.Programmes[pairing.ProgrammeID]; ok {
		cadence = prog.CadenceDays
	}

	msgs := tables.PairMessages(pairID)
	checkins := tables.PairCheckins(pairID)
	goals := tables.PairGoals(pairID)

	f := Features{
		PairID:             pairID,
		CadenceDays:        cadence,
		PairStartedDaysAgo: daysBetween(pairing.StartedAt, now),
		HasAnyMessages:     len(msgs) > 0,
	}

	if len(msgs) > 0 {
		latest := msgs[0].Timestamp
		for _, m := range msgs[1:] {
			if m.Timestamp.After(latest) {
				latest = m.Timestamp
			}
		}
		d := daysBetween(latest, now)
		f.DaysSinceLastMessage = &d
	}

	if len(checkins) > 0 {
		latest := checkins[0].Timestamp
		for _, c := range checkins[1:] {
			if c.Timestamp.After(latest) {
				latest = c.Timestamp
			}
		}
		d := daysBetween(latest, now)
		f.DaysSinceLastCheckin = &d
	}

	for _, m := range msgs {
		if daysBetween(m.Timestamp, now) > recentWindowDays {
			continue
		}
		f.MsgCount14d++
		switch m.AuthorRole {
		case dataset.RoleMentor:
			f.MentorMsgs14d++
		case dataset.RoleMentee:
			f.MenteeMsgs14d++
		}
	}
	// max(1, total) guards the zero-message window.
	denom := f.MsgCount14d
	if denom < 1 {
		denom = 1
	}
	f.MentorPct14d = float64(f.MentorMsgs14d) / float64(denom)

	var latestOpenUpdate time.Time
	for _, g := range goals {
		switch g.Status {
		case dataset.GoalOpen, dataset.GoalAtRisk, dataset.GoalBlocked:
			f.GoalsOpen++
			if g.UpdatedAt.After(latestOpenUpdate) {
				latestOpenUpdate = g.UpdatedAt
			}
		}
		switch g.Status {
		case dataset.GoalBlocked, dataset.GoalAtRisk:
			f.GoalsBlocked++
		}
	}
	if !latestOpenUpdate.IsZero() {
		d := daysBetween(latestOpenUpdate, now)
		f.DaysSinceGoalUpdateMax = &d
	}

	return f, true
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Seconds() / 86400
}
