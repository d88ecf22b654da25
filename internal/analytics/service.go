package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"classsync/internal/attendance"
	"classsync/internal/roster"
)

// ErrStudentNotFound is returned for per-student views of an unknown student.
var ErrStudentNotFound = errors.New("student not found")

// SessionSource is the read side of the session store.
type SessionSource interface {
	ListBySubject(ctx context.Context, subjectID string) ([]attendance.Session, error)
	ListBySubjectAndSection(ctx context.Context, subjectID, section string) ([]attendance.Session, error)
	ListBySection(ctx context.Context, section string) ([]attendance.Session, error)
}

// Aggregator derives attendance statistics from the full session history.
// Nothing it computes is cached or persisted.
type Aggregator struct {
	sessions  SessionSource
	students  roster.Students
	subjects  roster.Subjects
	threshold float64
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregator wires an aggregator. A non-positive threshold falls back to
// DefaultThreshold.
func NewAggregator(sessions SessionSource, students roster.Students, subjects roster.Subjects, threshold float64, logger *zap.Logger) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sessions:  sessions,
		students:  students,
		subjects:  subjects,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Threshold returns the configured at-risk threshold.
func (a *Aggregator) Threshold() float64 { return a.threshold }

// SubjectStats computes a Stat for every enrolled student of every section
// that has held the subject.
func (a *Aggregator) SubjectStats(ctx context.Context, subjectID string) ([]Stat, error) {
	return a.subjectStats(ctx, subjectID, a.threshold)
}

func (a *Aggregator) subjectStats(ctx context.Context, subjectID string, threshold float64) ([]Stat, error) {
	sessions, err := a.sessions.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", subjectID, err)
	}
	now := a.now()
	var out []Stat
	for _, g := range GroupSessions(sessions) {
		students, err := a.students.StudentsInSection(ctx, g.Section)
		if err != nil {
			return nil, fmt.Errorf("roster for section %s: %w", g.Section, err)
		}
		out = append(out, Compute(g, students, threshold, now)...)
	}
	return out, nil
}

// SubjectRisk lists the at-risk students of one subject.
type SubjectRisk struct {
	Subject  roster.Subject `json:"subject"`
	Students []Stat         `json:"students"`
}

// AtRiskForTeacher scans every subject the teacher owns. A non-positive
// threshold uses the configured one.
func (a *Aggregator) AtRiskForTeacher(ctx context.Context, teacherID string, threshold float64) ([]SubjectRisk, error) {
	if threshold <= 0 {
		threshold = a.threshold
	}
	subjects, err := a.subjects.SubjectsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("subjects for teacher: %w", err)
	}
	out := make([]SubjectRisk, 0, len(subjects))
	for _, sub := range subjects {
		stats, err := a.subjectStats(ctx, sub.ID, threshold)
		if err != nil {
			return nil, err
		}
		risk := AtRisk(stats, threshold)
		if len(risk) == 0 {
			continue
		}
		sort.SliceStable(risk, func(i, j int) bool { return risk[i].Percent < risk[j].Percent })
		out = append(out, SubjectRisk{Subject: sub, Students: risk})
	}
	return out, nil
}

// SubjectSummary is one row of a student's overview.
type SubjectSummary struct {
	Stat
	SubjectName string  `json:"subject_name"`
	SubjectCode string  `json:"subject_code"`
	Display     float64 `json:"display_percent"`
}

// Alert flags a subject, or the overall figure, below threshold.
type Alert struct {
	SubjectID   string  `json:"subject_id,omitempty"`
	SubjectName string  `json:"subject_name"`
	Percent     float64 `json:"percent"`
	Message     string  `json:"message"`
}

// Overview is a student's whole-term picture.
type Overview struct {
	Student      roster.Student   `json:"student"`
	Subjects     []SubjectSummary `json:"subjects"`
	Held         int              `json:"held"`
	Present      int              `json:"present"`
	Percent      float64          `json:"percent"`
	MonthHeld    int              `json:"month_held"`
	MonthPresent int              `json:"month_present"`
	MonthPercent float64          `json:"month_percent"`
	Alerts       []Alert          `json:"alerts"`
}

// StudentOverview computes per-subject stats for one student plus overall
// and current-month totals and priority alerts.
func (a *Aggregator) StudentOverview(ctx context.Context, studentID string) (Overview, error) {
	stu, err := a.student(ctx, studentID)
	if err != nil {
		return Overview{}, err
	}
	sessions, err := a.sessions.ListBySection(ctx, stu.Section)
	if err != nil {
		return Overview{}, fmt.Errorf("list sessions for section %s: %w", stu.Section, err)
	}

	now := a.now()
	ov := Overview{Student: *stu, Subjects: []SubjectSummary{}, Alerts: []Alert{}}
	for _, g := range GroupSessions(sessions) {
		stats := Compute(g, []roster.Student{*stu}, a.threshold, now)
		if len(stats) == 0 {
			continue
		}
		st := stats[0]
		row := SubjectSummary{Stat: st, Display: st.DisplayPercent()}
		if sub, err := a.subjects.SubjectByID(ctx, g.SubjectID); err != nil {
			return Overview{}, fmt.Errorf("subject %s: %w", g.SubjectID, err)
		} else if sub != nil {
			row.SubjectName, row.SubjectCode = sub.Name, sub.Code
		}
		ov.Subjects = append(ov.Subjects, row)

		ov.Held += st.Held
		ov.Present += st.Present
		ov.MonthHeld += st.MonthHeld
		ov.MonthPresent += st.MonthPresent

		if st.AtRisk {
			ov.Alerts = append(ov.Alerts, Alert{
				SubjectID:   st.SubjectID,
				SubjectName: row.SubjectName,
				Percent:     row.Display,
				Message: fmt.Sprintf("%s attendance is %.1f%%. Attend %d more classes to reach %.0f%%.",
					nameOr(row.SubjectName, st.SubjectID), row.Display, st.ClassesNeeded, a.threshold),
			})
		}
	}
	ov.Percent = OneDecimal(Percentage(ov.Present, ov.Held))
	ov.MonthPercent = OneDecimal(Percentage(ov.MonthPresent, ov.MonthHeld))
	if IsAtRisk(ov.Present, ov.Held, a.threshold) {
		ov.Alerts = append(ov.Alerts, Alert{
			SubjectName: "Overall",
			Percent:     ov.Percent,
			Message:     fmt.Sprintf("Overall attendance is %.1f%%, below the %.0f%% requirement.", ov.Percent, a.threshold),
		})
	}
	sort.SliceStable(ov.Alerts, func(i, j int) bool { return ov.Alerts[i].Percent < ov.Alerts[j].Percent })
	return ov, nil
}

// HoursRow is credit-hour attendance for one subject.
type HoursRow struct {
	SubjectID        string  `json:"subject_id"`
	SubjectName      string  `json:"subject_name"`
	SubjectCode      string  `json:"subject_code"`
	Credits          int     `json:"credits"`
	TotalHours       float64 `json:"total_hours"`
	PresentHours     float64 `json:"present_hours"`
	Percent          int     `json:"percent"`
	MaxMissableHours int     `json:"max_missable_hours"`
	Safe             bool    `json:"safe"`
}

// HoursSummary weighs attendance by session duration against each subject's
// planned contact hours.
type HoursSummary struct {
	Subjects     []HoursRow `json:"subjects"`
	TotalHours   float64    `json:"total_hours"`
	PresentHours float64    `json:"present_hours"`
	Percent      int        `json:"percent"`
}

// CreditSummary computes the hours-weighted view for one student.
// Sessions without a duration count as one hour.
func (a *Aggregator) CreditSummary(ctx context.Context, studentID string) (HoursSummary, error) {
	stu, err := a.student(ctx, studentID)
	if err != nil {
		return HoursSummary{}, err
	}
	sessions, err := a.sessions.ListBySection(ctx, stu.Section)
	if err != nil {
		return HoursSummary{}, fmt.Errorf("list sessions for section %s: %w", stu.Section, err)
	}

	present := map[string]float64{}
	for _, s := range sessions {
		if s.SubjectID == "" || !s.IsPresent(stu.ID) {
			continue
		}
		h := s.DurationHours
		if h <= 0 {
			h = 1
		}
		present[s.SubjectID] += h
	}

	subjects, err := a.subjects.ListSubjects(ctx)
	if err != nil {
		return HoursSummary{}, fmt.Errorf("list subjects: %w", err)
	}
	seen := map[string]bool{}
	for _, g := range GroupSessions(sessions) {
		seen[g.SubjectID] = true
	}

	sum := HoursSummary{Subjects: []HoursRow{}}
	for _, sub := range subjects {
		if !seen[sub.ID] {
			continue
		}
		row := HoursRow{
			SubjectID:    sub.ID,
			SubjectName:  sub.Name,
			SubjectCode:  sub.Code,
			Credits:      sub.Credits,
			TotalHours:   sub.TotalHours,
			PresentHours: present[sub.ID],
		}
		row.Percent = hoursPercent(row.PresentHours, row.TotalHours)
		row.MaxMissableHours = MaxMissableHours(row.PresentHours, row.TotalHours, a.threshold)
		row.Safe = float64(row.Percent) >= a.threshold
		sum.Subjects = append(sum.Subjects, row)
		sum.TotalHours += row.TotalHours
		sum.PresentHours += row.PresentHours
	}
	sum.Percent = hoursPercent(sum.PresentHours, sum.TotalHours)
	return sum, nil
}

// HistoryEntry is one session of a subject as a student saw it.
type HistoryEntry struct {
	SessionID     string  `json:"session_id"`
	Code          string  `json:"code"`
	Date          string  `json:"date"`
	Status        string  `json:"status"`
	Room          string  `json:"room"`
	DurationHours float64 `json:"duration_hours"`
}

// SubjectHistory lists the subject's sessions for the student's section,
// newest first, each marked Present or Absent.
func (a *Aggregator) SubjectHistory(ctx context.Context, studentID, subjectID string) ([]HistoryEntry, error) {
	stu, err := a.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sessions, err := a.sessions.ListBySubjectAndSection(ctx, subjectID, stu.Section)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s/%s: %w", subjectID, stu.Section, err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		di, dj := sessions[i].EffectiveDate(), sessions[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return sessions[i].OpensAt.After(sessions[j].OpensAt)
	})

	out := make([]HistoryEntry, 0, len(sessions))
	for _, s := range sessions {
		status := "Absent"
		if s.IsPresent(stu.ID) {
			status = "Present"
		}
		out = append(out, HistoryEntry{
			SessionID:     s.ID,
			Code:          s.Code,
			Date:          s.EffectiveDate().Format(time.DateOnly),
			Status:        status,
			Room:          s.Room,
			DurationHours: s.DurationHours,
		})
	}
	return out, nil
}

// MaxMissableHours is how many more hours can be missed while staying at or
// above threshold, given the hours attended so far.
func MaxMissableHours(presentHours, totalHours, threshold float64) int {
	if presentHours <= 0 || threshold <= 0 {
		return 0
	}
	v := math.Floor(presentHours/(threshold/100) - totalHours)
	if v < 0 {
		return 0
	}
	return int(v)
}

func hoursPercent(present, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(present / total * 100))
}

func (a *Aggregator) student(ctx context.Context, id string) (*roster.Student, error) {
	stu, err := a.students.StudentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if stu == nil {
		return nil, ErrStudentNotFound
	}
	return stu, nil
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
