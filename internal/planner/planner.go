// Package planner picks the delivery channel and next-business-day local
// send time for a nudge.
package planner

import (
	"time"

	"github.com/kalambet/edna/internal/dataset"
)

// fallbackZone applies when the mentee has no timezone or an invalid one.
const fallbackZone = "Australia/Melbourne"

// recentChannelWindowDays bounds how old a message can be and still set the
// delivery channel.
const recentChannelWindowDays = 14

// Plan is the delivery decision for one suggestion.
type Plan struct {
	Channel       dataset.Channel
	SendTimeLocal string // ISO-8601 with timezone offset
	Timezone      string
}

// Build picks channel and send time. override wins when set; messages are
// the pair's full history; menteeZone may be empty or invalid.
func Build(classification string, messages []dataset.Message, menteeZone string, override dataset.Channel, now time.Time) Plan {
	channel := override
	if channel == "" {
		channel = chooseChannel(classification, recentChannel(messages, now))
	}

	zone, sendTime := suggestSendTime(menteeZone, now)
	return Plan{
		Channel:       channel,
		SendTimeLocal: sendTime.Format(time.RFC3339),
		Timezone:      zone,
	}
}

// recentChannel returns the channel of the most recent message within the
// window, or empty when none qualifies.
func recentChannel(messages []dataset.Message, now time.Time) dataset.Channel {
	cutoff := now.AddDate(0, 0, -recentChannelWindowDays)
	var latest time.Time
	var channel dataset.Channel
	for _, m := range messages {
		if !m.Timestamp.After(cutoff) {
			continue
		}
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
			channel = m.Channel
		}
	}
	return channel
}

// chooseChannel prefers the recent conversation channel when it is a known
// one, otherwise a per-classification default.
func chooseChannel(classification string, recent dataset.Channel) dataset.Channel {
	switch recent {
	case dataset.ChannelEmail, dataset.ChannelInApp, dataset.ChannelSlack:
		return recent
	}

	switch classification {
	case "dormant", "blocked_goal":
		return dataset.ChannelEmail
	case "celebrate_wins":
		return dataset.ChannelInApp
	default:
		return dataset.ChannelEmail
	}
}

// suggestSendTime targets 09:15 in the mentee's zone: today when the local
// hour is still before 09:00, otherwise the next day, then advanced past
// Saturdays and Sundays. Returns the zone actually used.
func suggestSendTime(menteeZone string, now time.Time) (string, time.Time) {
	zone := menteeZone
	if zone == "" {
		zone = fallbackZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		zone = fallbackZone
		loc, err = time.LoadLocation(fallbackZone)
		if err != nil {
			// Zone database missing entirely; degrade to UTC.
			zone = "UTC"
			loc = time.UTC
		}
	}

	local := now.In(loc)
	day := local
	if local.Hour() >= 9 {
		day = day.AddDate(0, 0, 1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}

	send := time.Date(day.Year(), day.Month(), day.Day(), 9, 15, 0, 0, loc)
	return zone, send
}
