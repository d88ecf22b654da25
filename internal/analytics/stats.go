package analytics

import (
	"math"
	"sort"
	"time"

	"classsync/internal/attendance"
	"classsync/internal/roster"
)

// DefaultThreshold is the attendance percentage below which a student is at risk.
const DefaultThreshold = 75.0

// Stat is one student's attendance in one subject. It is derived from the
// full session history on every call and never stored.
type Stat struct {
	SubjectID     string     `json:"subject_id"`
	Section       string     `json:"section"`
	StudentID     string     `json:"student_id"`
	StudentName   string     `json:"student_name,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	Held          int        `json:"held"`
	Present       int        `json:"present"`
	Percent       float64    `json:"percent"`
	LastAttended  *time.Time `json:"last_attended,omitempty"`
	Streak        int        `json:"streak"`
	ClassesNeeded int        `json:"classes_needed"`
	MonthHeld     int        `json:"month_held"`
	MonthPresent  int        `json:"month_present"`
	AtRisk        bool       `json:"at_risk"`
}

// RoundedPercent is the integer-percent form used by compact listings.
func (s Stat) RoundedPercent() int { return RoundedPercentage(s.Present, s.Held) }

// DisplayPercent is the percentage rounded to one decimal.
func (s Stat) DisplayPercent() float64 { return OneDecimal(s.Percent) }

// Percentage returns present/held*100, or 0 when nothing was held.
func Percentage(present, held int) float64 {
	if held == 0 {
		return 0
	}
	return float64(present) / float64(held) * 100
}

// RoundedPercentage is Percentage rounded half away from zero.
func RoundedPercentage(present, held int) int {
	return int(math.Round(Percentage(present, held)))
}

// OneDecimal rounds v to one decimal place.
func OneDecimal(v float64) float64 { return math.Round(v*10) / 10 }

// ClassesNeeded is the minimum number of consecutive attended classes that
// lifts present/held to at least target percent. A target of 100 or more can
// never be reached after a miss and reports 0.
func ClassesNeeded(present, held int, target float64) int {
	if target >= 100 || target <= 0 {
		return 0
	}
	raw := (target*float64(held) - 100*float64(present)) / (100 - target)
	if raw <= 0 {
		return 0
	}
	// absorb float noise so exact quotients such as 4.0000000000001 stay 4
	return int(math.Ceil(raw - 1e-9))
}

// IsAtRisk reports whether a student with these counts is below threshold.
// Students with no held classes are never at risk.
func IsAtRisk(present, held int, threshold float64) bool {
	return held > 0 && Percentage(present, held) < threshold
}

// Group is the set of sessions of one subject held for one section.
type Group struct {
	SubjectID string
	Section   string
	Sessions  []attendance.Session
}

// GroupSessions buckets sessions by (subject, section). Sessions missing
// either key are dropped. Groups come back in a stable order.
func GroupSessions(sessions []attendance.Session) []Group {
	type key struct{ subject, section string }
	idx := map[key]int{}
	var groups []Group
	for _, s := range sessions {
		if s.SubjectID == "" || s.Section == "" {
			continue
		}
		k := key{s.SubjectID, s.Section}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{SubjectID: s.SubjectID, Section: s.Section})
		}
		groups[i].Sessions = append(groups[i].Sessions, s)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SubjectID != groups[j].SubjectID {
			return groups[i].SubjectID < groups[j].SubjectID
		}
		return groups[i].Section < groups[j].Section
	})
	return groups
}

// Compute derives a Stat for every roster student of the group's section.
// Every session counts as one held unit regardless of its duration.
func Compute(g Group, students []roster.Student, threshold float64, now time.Time) []Stat {
	out := make([]Stat, 0, len(students))
	for _, stu := range students {
		if stu.Section != "" && stu.Section != g.Section {
			continue
		}
		st := Stat{
			SubjectID:   g.SubjectID,
			Section:     g.Section,
			StudentID:   stu.ID,
			StudentName: stu.Name,
			ExternalID:  stu.ExternalID,
		}
		var last time.Time
		for _, s := range g.Sessions {
			present := s.IsPresent(stu.ID)
			st.Held++
			if present {
				st.Present++
				if d := s.EffectiveDate(); d.After(last) {
					last = d
				}
			}
			if d := s.EffectiveDate(); sameMonth(d, now) {
				st.MonthHeld++
				if present {
					st.MonthPresent++
				}
			}
		}
		if !last.IsZero() {
			l := last
			st.LastAttended = &l
		}
		st.Percent = Percentage(st.Present, st.Held)
		st.Streak = Streak(g.Sessions, stu.ID)
		st.ClassesNeeded = ClassesNeeded(st.Present, st.Held, threshold)
		st.AtRisk = IsAtRisk(st.Present, st.Held, threshold)
		out = append(out, st)
	}
	return out
}

// Streak counts consecutive attended sessions scanning back from the most
// recent dated one. Sessions without a date are ignored entirely.
func Streak(sessions []attendance.Session, studentID string) int {
	dated := make([]attendance.Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.Date.IsZero() {
			dated = append(dated, s)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].Date.Equal(dated[j].Date) {
			return dated[i].Date.After(dated[j].Date)
		}
		return dated[i].OpensAt.After(dated[j].OpensAt)
	})
	streak := 0
	for _, s := range dated {
		if !s.IsPresent(studentID) {
			break
		}
		streak++
	}
	return streak
}

// AtRisk filters stats down to students below threshold.
func AtRisk(stats []Stat, threshold float64) []Stat {
	var out []Stat
	for _, s := range stats {
		if IsAtRisk(s.Present, s.Held, threshold) {
			out = append(out, s)
		}
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return a.Year() == b.Year() && a.Month() == b.Month()
}
