package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository reads students, subjects and the timetable from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StudentsInSection returns every student enrolled in section.
func (r *Repository) StudentsInSection(ctx context.Context, section string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, external_id, section
		FROM students
		WHERE section = $1
		ORDER BY external_id
	`, section)
	if err != nil {
		return nil, fmt.Errorf("students in section: %w", err)
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.ExternalID, &s.Section); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// StudentByID returns a student or nil when absent.
func (r *Repository) StudentByID(ctx context.Context, id string) (*Student, error) {
	var s Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, external_id, section FROM students WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.ExternalID, &s.Section)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("student by id: %w", err)
	}
	return &s, nil
}

const subjectColumns = `id, name, code, credits, total_hours, lab_hours, COALESCE(teacher_id, '')`

// ListSubjects returns the whole catalogue.
func (r *Repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	return r.subjects(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY code`)
}

// SubjectsByTeacher returns subjects taught by teacherID.
func (r *Repository) SubjectsByTeacher(ctx context.Context, teacherID string) ([]Subject, error) {
	return r.subjects(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE teacher_id = $1 ORDER BY code`, teacherID)
}

// SubjectByID returns a subject or nil when absent.
func (r *Repository) SubjectByID(ctx context.Context, id string) (*Subject, error) {
	res, err := r.subjects(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return &res[0], nil
}

func (r *Repository) subjects(ctx context.Context, query string, args ...any) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var res []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Credits, &s.TotalHours, &s.LabHours, &s.TeacherID); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SlotsForDay returns the timetable for a weekday (0 = Sunday), joined with subject names.
func (r *Repository) SlotsForDay(ctx context.Context, day time.Weekday) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.subject_id, s.name, s.code, t.section, t.day_of_week,
		       t.start_time, t.end_time, COALESCE(t.room, '')
		FROM timetable_slots t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.day_of_week = $1
		ORDER BY t.start_time
	`, int(day))
	if err != nil {
		return nil, fmt.Errorf("slots for day: %w", err)
	}
	defer rows.Close()

	var res []Slot
	for rows.Next() {
		var (
			s   Slot
			dow int
		)
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.SubjectName, &s.SubjectCode, &s.Section, &dow,
			&s.StartTime, &s.EndTime, &s.Room); err != nil {
			return nil, err
		}
		s.Day = time.Weekday(dow)
		res = append(res, s)
	}
	return res, rows.Err()
}
