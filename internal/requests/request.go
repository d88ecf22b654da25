package requests

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes the two student-initiated flows.
type Kind string

const (
	// KindSelfStudy asks for one day of self-study to count as attended.
	KindSelfStudy Kind = "selfstudy"
	// KindCorrection disputes attendance over a date range.
	KindCorrection Kind = "correction"
)

func (k Kind) Valid() bool {
	return k == KindSelfStudy || k == KindCorrection
}

// Status of a request. Only pending requests can be decided.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// maxTextLen bounds free-text fields.
const maxTextLen = 500

var (
	ErrNotFound       = errors.New("request not found")
	ErrInvalid        = errors.New("invalid request")
	ErrAlreadyDecided = errors.New("request already decided")
	ErrNotYourSubject = errors.New("subject belongs to another teacher")
)

// Request is a student's self-study submission or attendance correction.
// Dates are calendar days at UTC midnight; a self-study covers one day.
type Request struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	StudentID   string     `json:"student_id"`
	SubjectID   string     `json:"subject_id"`
	DateFrom    time.Time  `json:"date_from"`
	DateTo      time.Time  `json:"date_to"`
	Reason      string     `json:"reason"`
	FileURL     string     `json:"file_url,omitempty"`
	Status      Status     `json:"status"`
	TeacherNote string     `json:"teacher_note"`
	DecidedBy   string     `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Decision moves a pending request to approved or rejected.
type Decision struct {
	Status    Status
	Note      string
	TeacherID string
	At        time.Time
}

func (r *Request) apply(d Decision) {
	at := d.At
	r.Status = d.Status
	r.TeacherNote = d.Note
	r.DecidedBy = d.TeacherID
	r.DecidedAt = &at
}

// Store persists requests. Decide is a conditional transition: it reports
// false when the request is no longer pending.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	ListByStudent(ctx context.Context, studentID string, kind Kind) ([]Request, error)
	ListBySubjects(ctx context.Context, subjectIDs []string, kind Kind, status Status) ([]Request, error)
	Decide(ctx context.Context, id string, d Decision) (bool, error)
	Reopen(ctx context.Context, id string) error
}
