package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"classsync/internal/geo"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db    *sql.DB
	types *pgtype.Map
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, types: pgtype.NewMap()}
}

const sessionColumns = `
	s.id, s.subject_id, s.section, s.room, s.session_date, s.code, s.opens_at, s.expires_at,
	s.duration_hours, s.anchor_lat, s.anchor_lng, s.created_at,
	COALESCE(array_agg(a.student_id ORDER BY a.marked_at) FILTER (WHERE a.student_id IS NOT NULL), '{}')`

const sessionFrom = `
	FROM attendance_sessions s
	LEFT JOIN session_attendees a ON a.session_id = s.id`

// Create inserts a session and any pre-populated attendees in one transaction.
func (r *Repository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var lat, lng sql.NullFloat64
	if s.Anchor != nil {
		lat = sql.NullFloat64{Float64: s.Anchor.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: s.Anchor.Lng, Valid: true}
	}
	var date sql.NullTime
	if !s.Date.IsZero() {
		date = sql.NullTime{Time: s.Date, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(id, subject_id, section, room, session_date, code, opens_at, expires_at,
			 duration_hours, anchor_lat, anchor_lng, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.SubjectID, s.Section, s.Room, date, s.Code, s.OpensAt, s.ExpiresAt,
		s.DurationHours, lat, lng, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, studentID := range s.Present {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_attendees (session_id, student_id, marked_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (session_id, student_id) DO NOTHING
		`, s.ID, studentID, s.CreatedAt); err != nil {
			return fmt.Errorf("insert attendee %s: %w", studentID, err)
		}
	}
	return tx.Commit()
}

// FindByCode returns the most recently opened session carrying code, or nil.
func (r *Repository) FindByCode(ctx context.Context, code string) (*Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+sessionFrom+`
		WHERE s.code = $1
		GROUP BY s.id
		ORDER BY s.opens_at DESC
		LIMIT 1
	`, code)
	if err != nil {
		return nil, err
	}
	sessions, err := r.scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// CodeActive reports whether a session with code has not yet expired at the given instant.
func (r *Repository) CodeActive(ctx context.Context, code string, at time.Time) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_sessions WHERE code = $1 AND expires_at >= $2)
	`, code, at).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return active, nil
}

// AppendPresent adds studentID to the session. The attendee primary key makes
// the append conditional, so concurrent duplicates resolve to exactly one insert.
func (r *Repository) AppendPresent(ctx context.Context, sessionID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO session_attendees (session_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, sessionID, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListBySubject returns every session for a subject, oldest first.
func (r *Repository) ListBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	return r.list(ctx, `WHERE s.subject_id = $1`, subjectID)
}

// ListBySubjectAndSection narrows ListBySubject to one section.
func (r *Repository) ListBySubjectAndSection(ctx context.Context, subjectID, section string) ([]Session, error) {
	return r.list(ctx, `WHERE s.subject_id = $1 AND s.section = $2`, subjectID, section)
}

// ListBySection returns sessions of every subject held for a section.
func (r *Repository) ListBySection(ctx context.Context, section string) ([]Session, error) {
	return r.list(ctx, `WHERE s.section = $1`, section)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+sessionFrom+`
		`+where+`
		GROUP BY s.id
		ORDER BY s.opens_at
	`, args...)
	if err != nil {
		return nil, err
	}
	return r.scanSessions(rows)
}

func (r *Repository) scanSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var (
			s        Session
			date     sql.NullTime
			lat, lng sql.NullFloat64
			present  []string
		)
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.Section, &s.Room, &date, &s.Code, &s.OpensAt, &s.ExpiresAt,
			&s.DurationHours, &lat, &lng, &s.CreatedAt, r.types.SQLScanner(&present)); err != nil {
			return nil, err
		}
		if date.Valid {
			s.Date = date.Time
		}
		if lat.Valid && lng.Valid {
			s.Anchor = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		if present == nil {
			present = []string{}
		}
		s.Present = present
		res = append(res, s)
	}
	return res, rows.Err()
}
