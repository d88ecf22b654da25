package attendance

import (
	"time"

	"classsync/internal/geo"
)

// State is the derived lifecycle state of a session at a given instant.
type State string

const (
	StatePending State = "PENDING"
	StateOpen    State = "OPEN"
	StateClosed  State = "CLOSED"
)

// Session is one class meeting's check-in window and its attendance of record.
type Session struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	Section       string     `json:"section"`
	Room          string     `json:"room"`
	Date          time.Time  `json:"date"` // zero on rows recorded without a calendar date
	Code          string     `json:"code"`
	OpensAt       time.Time  `json:"opens_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	DurationHours float64    `json:"duration_hours"`
	Anchor        *geo.Point `json:"anchor,omitempty"`
	Present       []string   `json:"present"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StateAt derives the session state from its timestamps. It is never stored.
func (s Session) StateAt(now time.Time) State {
	switch {
	case now.Before(s.OpensAt):
		return StatePending
	case now.After(s.ExpiresAt):
		return StateClosed
	default:
		return StateOpen
	}
}

// IsPresent reports whether studentID is in the present set.
func (s Session) IsPresent(studentID string) bool {
	for _, id := range s.Present {
		if id == studentID {
			return true
		}
	}
	return false
}

// EffectiveDate is the session date, falling back to creation time.
func (s Session) EffectiveDate() time.Time {
	if !s.Date.IsZero() {
		return s.Date
	}
	return s.CreatedAt
}

func (s Session) clone() Session {
	out := s
	out.Present = append([]string(nil), s.Present...)
	if s.Anchor != nil {
		a := *s.Anchor
		out.Anchor = &a
	}
	return out
}
