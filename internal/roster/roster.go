package roster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Student is an enrolled student. Enrollment is by section membership.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id"` // admission number / USN
	Section    string `json:"section"`
}

// Subject is a course taught by one teacher.
type Subject struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Code       string  `json:"code"`
	Credits    int     `json:"credits"`
	TotalHours float64 `json:"total_hours"`
	LabHours   float64 `json:"lab_hours"`
	TeacherID  string  `json:"teacher_id"`
}

// Slot is a weekly timetable entry. Times are "HH:MM" wall-clock strings.
type Slot struct {
	ID          string       `json:"id"`
	SubjectID   string       `json:"subject_id"`
	SubjectName string       `json:"subject_name"`
	SubjectCode string       `json:"subject_code"`
	Section     string       `json:"section"`
	Day         time.Weekday `json:"day_of_week"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	Room        string       `json:"room"`
}

// StartMinute returns the slot start as minutes past midnight.
func (s Slot) StartMinute() (int, error) {
	return ParseClock(s.StartTime)
}

// Students resolves section membership.
type Students interface {
	StudentsInSection(ctx context.Context, section string) ([]Student, error)
	StudentByID(ctx context.Context, id string) (*Student, error)
}

// Subjects looks up subjects.
type Subjects interface {
	ListSubjects(ctx context.Context) ([]Subject, error)
	SubjectByID(ctx context.Context, id string) (*Subject, error)
	SubjectsByTeacher(ctx context.Context, teacherID string) ([]Subject, error)
}

// Timetable exposes the weekly schedule.
type Timetable interface {
	SlotsForDay(ctx context.Context, day time.Weekday) ([]Slot, error)
}

// ParseClock parses "HH:MM" into minutes past midnight.
func ParseClock(v string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", v)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hh*60 + mm, nil
}
