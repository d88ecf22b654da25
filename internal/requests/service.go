package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classsync/internal/attendance"
	"classsync/internal/metrics"
	"classsync/internal/notify"
	"classsync/internal/roster"
)

// Crediter records approved self-study as attendance.
type Crediter interface {
	Credit(ctx context.Context, req attendance.CreditRequest) (attendance.Session, error)
}

// Service runs the submit and decide flows for student requests.
type Service struct {
	store    Store
	ledger   Crediter
	students roster.Students
	subjects roster.Subjects
	sink     notify.Sink
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, ledger Crediter, students roster.Students, subjects roster.Subjects, sink notify.Sink, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		students: students,
		subjects: subjects,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Submission is what a student files. DateTo is ignored for self-study and
// defaults to DateFrom for corrections.
type Submission struct {
	Kind      Kind
	StudentID string
	SubjectID string
	DateFrom  time.Time
	DateTo    time.Time
	Reason    string
	FileURL   string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Submit stores a pending request and tells the subject's teacher.
func (s *Service) Submit(ctx context.Context, sub Submission) (Request, error) {
	if !sub.Kind.Valid() {
		return Request{}, invalid("unknown kind %q", sub.Kind)
	}
	if sub.DateFrom.IsZero() {
		return Request{}, invalid("date required")
	}
	from := calendarDay(sub.DateFrom)
	to := from
	if sub.Kind == KindCorrection && !sub.DateTo.IsZero() {
		to = calendarDay(sub.DateTo)
	}
	if to.Before(from) {
		return Request{}, invalid("date range ends before it starts")
	}
	reason := strings.TrimSpace(sub.Reason)
	if len(reason) > maxTextLen || len(sub.FileURL) > maxTextLen {
		return Request{}, invalid("text fields are limited to %d characters", maxTextLen)
	}

	stu, err := s.students.StudentByID(ctx, sub.StudentID)
	if err != nil {
		return Request{}, fmt.Errorf("lookup student: %w", err)
	}
	if stu == nil {
		return Request{}, invalid("unknown student")
	}
	subject, err := s.subjects.SubjectByID(ctx, sub.SubjectID)
	if err != nil {
		return Request{}, fmt.Errorf("lookup subject: %w", err)
	}
	if subject == nil {
		return Request{}, invalid("unknown subject")
	}

	r := Request{
		ID:        uuid.NewString(),
		Kind:      sub.Kind,
		StudentID: stu.ID,
		SubjectID: subject.ID,
		DateFrom:  from,
		DateTo:    to,
		Reason:    reason,
		FileURL:   sub.FileURL,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, &r); err != nil {
		return Request{}, err
	}
	metrics.Requests.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	s.logger.Info("request submitted",
		zap.String("request_id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.String("student_id", r.StudentID),
		zap.String("subject_id", r.SubjectID))

	if subject.TeacherID != "" {
		s.emit(ctx, submittedNotice(r, *stu, *subject))
	}
	return r, nil
}

// ForStudent lists a student's own requests, newest first.
func (s *Service) ForStudent(ctx context.Context, studentID string, kind Kind) ([]Request, error) {
	if kind != "" && !kind.Valid() {
		return nil, invalid("unknown kind %q", kind)
	}
	return s.store.ListByStudent(ctx, studentID, kind)
}

// ForTeacher lists requests on the teacher's subjects. Empty kind or status
// matches all.
func (s *Service) ForTeacher(ctx context.Context, teacherID string, kind Kind, status Status) ([]Request, error) {
	if kind != "" && !kind.Valid() {
		return nil, invalid("unknown kind %q", kind)
	}
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	subjects, err := s.subjects.SubjectsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("subjects for teacher: %w", err)
	}
	ids := make([]string, 0, len(subjects))
	for _, sub := range subjects {
		ids = append(ids, sub.ID)
	}
	return s.store.ListBySubjects(ctx, ids, kind, status)
}

// Outcome is a decided request and, for approved self-study, the credit
// session that now counts it.
type Outcome struct {
	Request Request             `json:"request"`
	Credit  *attendance.Session `json:"credit,omitempty"`
}

// Decide approves or rejects a pending request. Approving self-study records
// a credit session; if that fails the request goes back to pending. The
// student is notified either way.
func (s *Service) Decide(ctx context.Context, teacherID, id string, status Status, note string) (Outcome, error) {
	if status != StatusApproved && status != StatusRejected {
		return Outcome{}, invalid("status must be approved or rejected")
	}
	note = strings.TrimSpace(note)
	if len(note) > maxTextLen {
		return Outcome{}, invalid("note is limited to %d characters", maxTextLen)
	}

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load request: %w", err)
	}
	if r == nil {
		return Outcome{}, ErrNotFound
	}
	subject, err := s.subjects.SubjectByID(ctx, r.SubjectID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup subject: %w", err)
	}
	if subject == nil {
		subject = &roster.Subject{ID: r.SubjectID}
	}
	if subject.TeacherID != "" && subject.TeacherID != teacherID {
		return Outcome{}, ErrNotYourSubject
	}
	if r.Status != StatusPending {
		return Outcome{}, ErrAlreadyDecided
	}

	d := Decision{Status: status, Note: note, TeacherID: teacherID, At: s.now().UTC()}
	ok, err := s.store.Decide(ctx, id, d)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, ErrAlreadyDecided
	}
	r.apply(d)
	out := Outcome{Request: *r}

	if status == StatusApproved && r.Kind == KindSelfStudy {
		sess, err := s.credit(ctx, *r)
		if err != nil {
			if rerr := s.store.Reopen(ctx, id); rerr != nil {
				s.logger.Error("reopen after failed credit", zap.String("request_id", id), zap.Error(rerr))
			}
			return Outcome{}, err
		}
		out.Credit = &sess
	}

	metrics.Requests.WithLabelValues(string(r.Kind), string(status)).Inc()
	s.logger.Info("request decided",
		zap.String("request_id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.String("status", string(status)),
		zap.String("subject_id", r.SubjectID))
	s.emit(ctx, decidedNotice(out, *subject))
	return out, nil
}

func (s *Service) credit(ctx context.Context, r Request) (attendance.Session, error) {
	stu, err := s.students.StudentByID(ctx, r.StudentID)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("lookup student: %w", err)
	}
	if stu == nil {
		return attendance.Session{}, invalid("student %s no longer enrolled", r.StudentID)
	}
	return s.ledger.Credit(ctx, attendance.CreditRequest{
		SubjectID: r.SubjectID,
		StudentID: stu.ID,
		Section:   stu.Section,
		Date:      r.DateFrom,
	})
}

func (s *Service) emit(ctx context.Context, n notify.Notification) {
	if err := s.sink.Emit(ctx, n); err != nil {
		s.logger.Warn("request notification not delivered",
			zap.String("recipient_id", n.RecipientID),
			zap.String("category", string(n.Category)),
			zap.Error(err))
	}
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func submittedNotice(r Request, stu roster.Student, sub roster.Subject) notify.Notification {
	n := notify.Notification{
		RecipientID: sub.TeacherID,
		Role:        notify.RoleTeacher,
		Payload: map[string]any{
			"request_id": r.ID,
			"student_id": r.StudentID,
			"subject_id": r.SubjectID,
			"kind":       string(r.Kind),
		},
	}
	who := nameOr(stu.Name, "A student")
	if r.Kind == KindSelfStudy {
		n.Category = notify.CategorySelfStudyRequest
		n.Title = "Self-study submission"
		n.Message = fmt.Sprintf("%s submitted a self-study for %s (%s) on %s.", who, sub.Name, sub.Code, day(r.DateFrom))
		return n
	}
	n.Category = notify.CategoryAttendanceRequest
	n.Title = "Attendance correction request"
	n.Message = fmt.Sprintf("%s has submitted an attendance correction request for %s (%s) from %s to %s.",
		who, sub.Name, sub.Code, day(r.DateFrom), day(r.DateTo))
	return n
}

func decidedNotice(out Outcome, sub roster.Subject) notify.Notification {
	r := out.Request
	suffix := ""
	if r.TeacherNote != "" {
		suffix = " Note: " + r.TeacherNote
	}
	n := notify.Notification{
		RecipientID: r.StudentID,
		Role:        notify.RoleStudent,
		Payload: map[string]any{
			"request_id": r.ID,
			"subject_id": r.SubjectID,
			"status":     string(r.Status),
		},
	}
	if out.Credit != nil {
		n.Payload["session_code"] = out.Credit.Code
	}
	subject := nameOr(sub.Name, sub.ID)
	if r.Kind == KindSelfStudy {
		n.Category = notify.CategorySelfStudyDecision
		n.Title = "Self-study " + string(r.Status)
		n.Message = fmt.Sprintf("Your self-study submission for %s (%s) on %s has been %s.%s",
			subject, sub.Code, day(r.DateFrom), r.Status, suffix)
		return n
	}
	n.Category = notify.CategoryAttendanceDecision
	n.Title = "Attendance request " + string(r.Status)
	n.Message = fmt.Sprintf("Your attendance correction request for %s (%s) from %s to %s has been %s.%s",
		subject, sub.Code, day(r.DateFrom), day(r.DateTo), r.Status, suffix)
	return n
}
