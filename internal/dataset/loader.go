package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Load reads all data files from dataDir into typed tables. Malformed rows
// are skipped with a warning; a missing file yields an empty table. Rows
// referencing an unknown pairing are dropped so downstream stages never see
// orphaned events.
func Load(dataDir string) (*Tables, error) {
	t := &Tables{
		Users:      make(map[string]User),
		Pairings:   make(map[string]Pairing),
		Programmes: make(map[string]Programme),
	}

	if err := loadCSV(filepath.Join(dataDir, "users.csv"), func(row record) error {
		u, err := parseUser(row)
		if err != nil {
			return err
		}
		t.Users[u.UserID] = u
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadCSV(filepath.Join(dataDir, "pairings.csv"), func(row record) error {
		p, err := parsePairing(row)
		if err != nil {
			return err
		}
		t.Pairings[p.PairID] = p
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadCSV(filepath.Join(dataDir, "messages.csv"), func(row record) error {
		m, err := parseMessage(row)
		if err != nil {
			return err
		}
		if _, ok := t.Pairings[m.PairID]; !ok {
			return fmt.Errorf("unknown pair %q", m.PairID)
		}
		t.Messages = append(t.Messages, m)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadCSV(filepath.Join(dataDir, "checkins.csv"), func(row record) error {
		c, err := parseCheckin(row)
		if err != nil {
			return err
		}
		if _, ok := t.Pairings[c.PairID]; !ok {
			return fmt.Errorf("unknown pair %q", c.PairID)
		}
		t.Checkins = append(t.Checkins, c)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadCSV(filepath.Join(dataDir, "goals.csv"), func(row record) error {
		g, err := parseGoal(row)
		if err != nil {
			return err
		}
		if _, ok := t.Pairings[g.PairID]; !ok {
			return fmt.Errorf("unknown pair %q", g.PairID)
		}
		t.Goals = append(t.Goals, g)
		return nil
	}); err != nil {
		return nil, err
	}

	programmes, err := loadProgrammes(filepath.Join(dataDir, "programmes.json"))
	if err != nil {
		return nil, err
	}
	for _, p := range programmes {
		t.Programmes[p.ProgrammeID] = p
	}

	tips, err := loadTips(filepath.Join(dataDir, "tips.json"))
	if err != nil {
		return nil, err
	}
	t.Tips = tips

	slog.Info("data loaded",
		"users", len(t.Users),
		"pairings", len(t.Pairings),
		"messages", len(t.Messages),
		"checkins", len(t.Checkins),
		"goals", len(t.Goals),
		"programmes", len(t.Programmes),
		"tips", len(t.Tips),
	)

	return t, nil
}

// record is one CSV row keyed by header name.
type record map[string]string

// loadCSV streams rows from a headered CSV file, invoking parse per row.
// Parse errors skip the row with a warning; a missing file is not an error.
func loadCSV(path string, parse func(record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("data file not found", "path", path)
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}

	line := 1
	for {
		line++
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("skipping unreadable row", "path", path, "line", line, "error", err)
			continue
		}

		row := make(record, len(header))
		for i, h := range header {
			if i < len(fields) {
				row[strings.TrimSpace(h)] = fields[i]
			}
		}
		if err := parse(row); err != nil {
			slog.Warn("skipping invalid row", "path", path, "line", line, "error", err)
		}
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps, with or without the Z suffix,
// and date-only values.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func (r record) req(key string) (string, error) {
	v, ok := r[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing field %q", key)
	}
	return v, nil
}

func parseUser(row record) (User, error) {
	id, err := row.req("user_id")
	if err != nil {
		return User{}, err
	}
	roleStr, err := row.req("role")
	if err != nil {
		return User{}, err
	}
	role := Role(roleStr)
	if !validRole(role) {
		return User{}, fmt.Errorf("user %s: invalid role %q", id, roleStr)
	}
	name, err := row.req("first_name")
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, err)
	}
	joinedRaw, err := row.req("joined_at")
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, err)
	}
	joined, err := parseTime(joinedRaw)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, err)
	}
	return User{
		UserID:    id,
		Role:      role,
		Email:     row["email"],
		Timezone:  strings.TrimSpace(row["timezone"]),
		FirstName: name,
		JoinedAt:  joined,
	}, nil
}

func parsePairing(row record) (Pairing, error) {
	id, err := row.req("pair_id")
	if err != nil {
		return Pairing{}, err
	}
	mentorID, err := row.req("mentor_id")
	if err != nil {
		return Pairing{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	menteeID, err := row.req("mentee_id")
	if err != nil {
		return Pairing{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	programmeID, err := row.req("programme_id")
	if err != nil {
		return Pairing{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	startedRaw, err := row.req("started_at")
	if err != nil {
		return Pairing{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	started, err := parseTime(startedRaw)
	if err != nil {
		return Pairing{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	return Pairing{
		PairID:      id,
		MentorID:    mentorID,
		MenteeID:    menteeID,
		ProgrammeID: programmeID,
		StartedAt:   started,
	}, nil
}

func parseMessage(row record) (Message, error) {
	pairID, err := row.req("pair_id")
	if err != nil {
		return Message{}, err
	}
	tsRaw, err := row.req("timestamp")
	if err != nil {
		return Message{}, fmt.Errorf("message for %s: %w", pairID, err)
	}
	ts, err := parseTime(tsRaw)
	if err != nil {
		return Message{}, fmt.Errorf("message for %s: %w", pairID, err)
	}
	role := Role(row["author_role"])
	if !validRole(role) {
		return Message{}, fmt.Errorf("message for %s: invalid author_role %q", pairID, row["author_role"])
	}
	channel := Channel(row["channel"])
	if !validChannel(channel) {
		return Message{}, fmt.Errorf("message for %s: invalid channel %q", pairID, row["channel"])
	}
	return Message{
		PairID:     pairID,
		Timestamp:  ts,
		AuthorRole: role,
		Channel:    channel,
		Text:       row["text"],
	}, nil
}

func parseCheckin(row record) (Checkin, error) {
	pairID, err := row.req("pair_id")
	if err != nil {
		return Checkin{}, err
	}
	tsRaw, err := row.req("timestamp")
	if err != nil {
		return Checkin{}, fmt.Errorf("checkin for %s: %w", pairID, err)
	}
	ts, err := parseTime(tsRaw)
	if err != nil {
		return Checkin{}, fmt.Errorf("checkin for %s: %w", pairID, err)
	}
	menteeScore, err := parseScore(row["mentee_score"])
	if err != nil {
		return Checkin{}, fmt.Errorf("checkin for %s: mentee_score: %w", pairID, err)
	}
	mentorScore, err := parseScore(row["mentor_score"])
	if err != nil {
		return Checkin{}, fmt.Errorf("checkin for %s: mentor_score: %w", pairID, err)
	}
	return Checkin{
		PairID:      pairID,
		Timestamp:   ts,
		MenteeScore: menteeScore,
		MentorScore: mentorScore,
		Notes:       row["notes"],
	}, nil
}

// parseScore parses a 1-5 check-in score.
func parseScore(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if n < 1 || n > 5 {
		return 0, fmt.Errorf("score %d out of range 1-5", n)
	}
	return n, nil
}

func parseGoal(row record) (Goal, error) {
	pairID, err := row.req("pair_id")
	if err != nil {
		return Goal{}, err
	}
	goalID, err := row.req("goal_id")
	if err != nil {
		return Goal{}, fmt.Errorf("goal for %s: %w", pairID, err)
	}
	status := GoalStatus(row["status"])
	if !validGoalStatus(status) {
		return Goal{}, fmt.Errorf("goal %s: invalid status %q", goalID, row["status"])
	}
	updatedRaw, err := row.req("updated_at")
	if err != nil {
		return Goal{}, fmt.Errorf("goal %s: %w", goalID, err)
	}
	updated, err := parseTime(updatedRaw)
	if err != nil {
		return Goal{}, fmt.Errorf("goal %s: %w", goalID, err)
	}
	return Goal{
		PairID:    pairID,
		GoalID:    goalID,
		Title:     row["title"],
		Status:    status,
		UpdatedAt: updated,
	}, nil
}

// loadProgrammes reads the programmes JSON array. Entries without an id or
// a positive cadence are skipped.
func loadProgrammes(path string) ([]Programme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("data file not found", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw []Programme
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var out []Programme
	for _, p := range raw {
		if p.ProgrammeID == "" || p.CadenceDays <= 0 {
			slog.Warn("skipping invalid programme", "programme_id", p.ProgrammeID)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// loadTips reads the tips JSON array. Entries without an id or text are skipped.
func loadTips(path string) ([]Tip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("data file not found", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw []Tip
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var out []Tip
	for _, tip := range raw {
		if tip.TipID == "" || tip.Text == "" {
			slog.Warn("skipping invalid tip", "tip_id", tip.TipID)
			continue
		}
		out = append(out, tip)
	}
	return out, nil
}
