package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists requests in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const requestColumns = `
	id, kind, student_id, subject_id, date_from, date_to, reason, file_url,
	status, teacher_note, decided_by, decided_at, created_at`

func (r *Repository) Create(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student_requests
			(id, kind, student_id, subject_id, date_from, date_to, reason, file_url, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, req.ID, string(req.Kind), req.StudentID, req.SubjectID, req.DateFrom, req.DateTo,
		req.Reason, req.FileURL, string(req.Status), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM student_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) ListByStudent(ctx context.Context, studentID string, kind Kind) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM student_requests
		WHERE student_id = $1 AND ($2::text = '' OR kind = $2)
		ORDER BY created_at DESC
	`, studentID, string(kind))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repository) ListBySubjects(ctx context.Context, subjectIDs []string, kind Kind, status Status) ([]Request, error) {
	if len(subjectIDs) == 0 {
		return []Request{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM student_requests
		WHERE subject_id = ANY($1)
		  AND ($2::text = '' OR kind = $2)
		  AND ($3::text = '' OR status = $3)
		ORDER BY created_at DESC
	`, subjectIDs, string(kind), string(status))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Decide only touches a pending row, so concurrent decisions cannot both win.
func (r *Repository) Decide(ctx context.Context, id string, d Decision) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE student_requests
		SET status = $2, teacher_note = $3, decided_by = $4, decided_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, string(d.Status), d.Note, d.TeacherID, d.At)
	if err != nil {
		return false, fmt.Errorf("decide request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) Reopen(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE student_requests
		SET status = 'pending', teacher_note = '', decided_by = NULL, decided_at = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reopen request: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (Request, error) {
	var (
		req          Request
		kind, status string
		decidedBy    sql.NullString
		decidedAt    sql.NullTime
	)
	err := row.Scan(&req.ID, &kind, &req.StudentID, &req.SubjectID, &req.DateFrom, &req.DateTo,
		&req.Reason, &req.FileURL, &status, &req.TeacherNote, &decidedBy, &decidedAt, &req.CreatedAt)
	if err != nil {
		return Request{}, err
	}
	req.Kind, req.Status = Kind(kind), Status(status)
	req.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		at := decidedAt.Time
		req.DecidedAt = &at
	}
	return req, nil
}

func collect(rows *sql.Rows) ([]Request, error) {
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
