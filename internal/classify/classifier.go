// Package classify assigns at most one engagement classification per pair
// by evaluating a fixed cascade of rules in strict priority order.
package classify

import (
	"fmt"
	"sort"
	"time"

	"github.com/kalambet/edna/internal/dataset"
	"github.com/kalambet/edna/internal/features"
)

// Classification labels an engagement situation for a pair.
type Classification string

const (
	Dormant       Classification = "dormant"
	BlockedGoal   Classification = "blocked_goal"
	OneSided      Classification = "one_sided"
	CelebrateWins Classification = "celebrate_wins"
)

// Result is the classifier output. Classification is empty when no rule
// matched; Confidence stays within [0, 0.9].
type Result struct {
	Classification Classification
	Confidence     float64
	Explanations   []string
}

// Aux carries the raw per-pair rows the celebrate-wins rule needs beyond
// Features. Rules that only need Features ignore it; a nil Aux disables
// the celebrate-wins rule entirely.
type Aux struct {
	Checkins []dataset.Checkin
	Goals    []dataset.Goal
	Now      time.Time
}

// rule is one cascade entry. ok reports whether the rule fired; when it
// does, the returned Result is final and lower-priority rules never run.
type rule struct {
	name string
	eval func(f features.Features, aux *Aux) (Result, bool)
}

// cascade is the priority order contract: earlier rules always win.
var cascade = []rule{
	{name: "dormant_messages", eval: dormantMessages},
	{name: "dormant_checkins", eval: dormantCheckins},
	{name: "blocked_goal", eval: blockedGoal},
	{name: "one_sided", eval: oneSided},
	{name: "celebrate_wins", eval: celebrateWins},
	{name: "no_activity_fallback", eval: noActivityFallback},
}

// Run evaluates the cascade over f, short-circuiting on the first match.
// aux may be nil, in which case the celebrate-wins rule cannot fire.
func Run(f features.Features, aux *Aux) Result {
	for _, r := range cascade {
		if res, ok := r.eval(f, aux); ok {
			return res
		}
	}
	return Result{Explanations: []string{"no engagement issues detected"}}
}

// dormantConfidence maps a gap ratio (days since activity / cadence) to a
// confidence in [0.6, 0.9].
func dormantConfidence(gapRatio float64) float64 {
	c := 0.6 + (gapRatio-1.5)*0.1
	if c > 0.9 {
		c = 0.9
	}
	return c
}

func dormantMessages(f features.Features, _ *Aux) (Result, bool) {
	if f.DaysSinceLastMessage == nil {
		return Result{}, false
	}
	days := *f.DaysSinceLastMessage
	if days <= float64(f.CadenceDays)*1.5 {
		return Result{}, false
	}
	gapRatio := days / float64(f.CadenceDays)
	return Result{
		Classification: Dormant,
		Confidence:     dormantConfidence(gapRatio),
		Explanations: []string{
			fmt.Sprintf("last message %d days ago vs cadence %d", int(days), f.CadenceDays),
		},
	}, true
}

func dormantCheckins(f features.Features, _ *Aux) (Result, bool) {
	if f.DaysSinceLastCheckin == nil {
		return Result{}, false
	}
	days := *f.DaysSinceLastCheckin
	if days <= float64(f.CadenceDays)*1.5 {
		return Result{}, false
	}
	gapRatio := days / float64(f.CadenceDays)
	return Result{
		Classification: Dormant,
		Confidence:     dormantConfidence(gapRatio),
		Explanations: []string{
			fmt.Sprintf("no check-ins recorded in %d days", int(days)),
		},
	}, true
}

// staleGoalDays is the age at which an un-updated open goal counts as stuck.
const staleGoalDays = 28

func blockedGoal(f features.Features, _ *Aux) (Result, bool) {
	if f.GoalsBlocked > 0 {
		return Result{
			Classification: BlockedGoal,
			Confidence:     0.75,
			Explanations: []string{
				fmt.Sprintf("%d blocked goal(s)", f.GoalsBlocked),
			},
		}, true
	}
	if f.GoalsOpen > 0 && f.DaysSinceGoalUpdateMax != nil && *f.DaysSinceGoalUpdateMax > staleGoalDays {
		return Result{
			Classification: BlockedGoal,
			Confidence:     0.7,
			Explanations: []string{
				fmt.Sprintf("goal blocked since %d days", int(*f.DaysSinceGoalUpdateMax)),
			},
		}, true
	}
	return Result{}, false
}

func oneSided(f features.Features, _ *Aux) (Result, bool) {
	if f.MsgCount14d < 4 || f.MentorPct14d <= 0.7 {
		return Result{}, false
	}
	return Result{
		Classification: OneSided,
		Confidence:     0.65 + (f.MentorPct14d-0.7)*0.5,
		Explanations: []string{
			fmt.Sprintf("mentor speaking %d%% over last 14d", int(f.MentorPct14d*100)),
		},
	}, true
}

func celebrateWins(f features.Features, aux *Aux) (Result, bool) {
	if aux == nil {
		return Result{}, false
	}

	if len(aux.Checkins) >= 2 {
		sorted := make([]dataset.Checkin, len(aux.Checkins))
		copy(sorted, aux.Checkins)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		})
		avg := float64(sorted[0].MenteeScore+sorted[1].MenteeScore) / 2
		if avg >= 4 {
			return Result{
				Classification: CelebrateWins,
				Confidence:     0.7,
				Explanations: []string{
					fmt.Sprintf("average mentee score %.1f in recent check-ins", avg),
				},
			}, true
		}
	}

	completed := 0
	for _, g := range aux.Goals {
		if g.Status != dataset.GoalCompleted {
			continue
		}
		if aux.Now.Sub(g.UpdatedAt).Seconds()/86400 <= 14 {
			completed++
		}
	}
	if completed > 0 {
		return Result{
			Classification: CelebrateWins,
			Confidence:     0.75,
			Explanations: []string{
				fmt.Sprintf("%d goal(s) completed recently", completed),
			},
		}, true
	}

	return Result{}, false
}

func noActivityFallback(f features.Features, _ *Aux) (Result, bool) {
	if f.HasAnyMessages {
		return Result{}, false
	}
	if f.PairStartedDaysAgo <= float64(f.CadenceDays)*2 {
		return Result{}, false
	}
	return Result{
		Classification: Dormant,
		Confidence:     0.55,
		Explanations: []string{
			fmt.Sprintf("no messages after %d days since pairing", int(f.PairStartedDaysAgo)),
		},
	}, true
}
