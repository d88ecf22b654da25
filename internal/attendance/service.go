package attendance

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classsync/internal/geo"
	"classsync/internal/metrics"
)

const (
	liveCodePrefix   = "CS-"
	creditCodePrefix = "SELF-"
	codeLength       = 6
	maxCodeAttempts  = 8
	creditRoom       = "Self-study"
)

// Store persists sessions. AppendPresent must be an atomic conditional
// append: it reports false when the student is already present.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByCode(ctx context.Context, code string) (*Session, error)
	CodeActive(ctx context.Context, code string, at time.Time) (bool, error)
	AppendPresent(ctx context.Context, sessionID, studentID string) (bool, error)
	ListBySubject(ctx context.Context, subjectID string) ([]Session, error)
	ListBySubjectAndSection(ctx context.Context, subjectID, section string) ([]Session, error)
	ListBySection(ctx context.Context, section string) ([]Session, error)
}

// Policy holds the ledger's tunables.
type Policy struct {
	FenceRadiusMeters float64
	Window            time.Duration
	DurationHours     float64
}

// DefaultPolicy is a 60 m fence, a 15 minute window and one-hour sessions.
func DefaultPolicy() Policy {
	return Policy{FenceRadiusMeters: 60, Window: 15 * time.Minute, DurationHours: 1}
}

// Ledger owns the lifecycle of check-in windows.
type Ledger struct {
	store   Store
	policy  Policy
	logger  *zap.Logger
	now     func() time.Time
	newCode func() string
}

// NewLedger creates a ledger backed by store.
func NewLedger(store Store, policy Policy, logger *zap.Logger) *Ledger {
	def := DefaultPolicy()
	if policy.FenceRadiusMeters <= 0 {
		policy.FenceRadiusMeters = def.FenceRadiusMeters
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.DurationHours <= 0 {
		policy.DurationHours = def.DurationHours
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		newCode: randomCode,
	}
}

// SetClock replaces the wall clock, for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Policy returns the effective policy.
func (l *Ledger) Policy() Policy { return l.policy }

// OpenRequest describes a session a teacher is starting.
type OpenRequest struct {
	SubjectID     string
	Section       string
	Room          string
	Anchor        *geo.Point
	DurationHours float64
	Window        time.Duration
}

// Open starts a new check-in window anchored at the teacher's coordinate.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (Session, error) {
	if req.Anchor == nil || !req.Anchor.Valid() {
		return Session{}, ErrInvalidLocation
	}
	window := req.Window
	if window <= 0 {
		window = l.policy.Window
	}
	duration := req.DurationHours
	if duration <= 0 {
		duration = l.policy.DurationHours
	}

	now := l.now().UTC()
	code, err := l.allocateCode(ctx, liveCodePrefix, now)
	if err != nil {
		return Session{}, err
	}

	anchor := *req.Anchor
	s := Session{
		ID:            uuid.NewString(),
		SubjectID:     req.SubjectID,
		Section:       req.Section,
		Room:          req.Room,
		Date:          now,
		Code:          code,
		OpensAt:       now,
		ExpiresAt:     now.Add(window),
		DurationHours: duration,
		Anchor:        &anchor,
		Present:       []string{},
		CreatedAt:     now,
	}
	if err := l.store.Create(ctx, &s); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsOpened.WithLabelValues("live").Inc()
	l.logger.Info("session opened",
		zap.String("session_code", s.Code),
		zap.String("subject_id", s.SubjectID),
		zap.String("section", s.Section),
		zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// Attempt is a single check-in request. Location is nil when the client
// did not submit one.
type Attempt struct {
	StudentID string
	Code      string
	Location  *geo.Point
}

// Outcome describes an accepted check-in.
type Outcome struct {
	Session   Session
	StudentID string
	Distance  float64
	MarkedAt  time.Time
}

// CheckIn validates an attempt and, on success, appends the student to the
// session's present set.
func (l *Ledger) CheckIn(ctx context.Context, a Attempt) (Outcome, error) {
	out, err := l.checkIn(ctx, a)
	metrics.CheckIns.WithLabelValues(Reason(err)).Inc()
	if err != nil && !IsClientError(err) {
		l.logger.Error("check-in failed",
			zap.String("session_code", a.Code),
			zap.String("student_id", a.StudentID),
			zap.Error(err))
	}
	return out, err
}

func (l *Ledger) checkIn(ctx context.Context, a Attempt) (Outcome, error) {
	if strings.TrimSpace(a.StudentID) == "" {
		return Outcome{}, ErrStudentRequired
	}
	s, err := l.store.FindByCode(ctx, a.Code)
	if err != nil {
		return Outcome{}, fmt.Errorf("find session: %w", err)
	}
	if s == nil {
		return Outcome{}, ErrSessionNotFound
	}

	now := l.now()
	switch s.StateAt(now) {
	case StatePending:
		return Outcome{}, ErrNotStarted
	case StateClosed:
		return Outcome{}, ErrExpired
	}

	if s.Anchor == nil || !s.Anchor.Valid() {
		return Outcome{}, ErrLocationNotConfigured
	}
	if a.Location == nil || !a.Location.Valid() {
		return Outcome{}, ErrLocationRequired
	}
	d := geo.Distance(*s.Anchor, *a.Location)
	if d > l.policy.FenceRadiusMeters {
		return Outcome{}, ErrOutOfRange
	}

	added, err := l.store.AppendPresent(ctx, s.ID, a.StudentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("append present: %w", err)
	}
	if !added {
		return Outcome{}, ErrAlreadyMarked
	}
	s.Present = append(s.Present, a.StudentID)

	return Outcome{Session: *s, StudentID: a.StudentID, Distance: d, MarkedAt: now}, nil
}

// Lookup returns the session for code and its state right now.
func (l *Ledger) Lookup(ctx context.Context, code string) (Session, State, error) {
	s, err := l.store.FindByCode(ctx, code)
	if err != nil {
		return Session{}, "", fmt.Errorf("find session: %w", err)
	}
	if s == nil {
		return Session{}, "", ErrSessionNotFound
	}
	return *s, s.StateAt(l.now()), nil
}

// CreditRequest grants one unit of attendance without a live window,
// e.g. for approved self-study.
type CreditRequest struct {
	SubjectID string
	StudentID string
	Section   string
	Date      time.Time
}

// Credit records a zero-duration session whose present set is exactly the
// one student. It counts as one held and one present unit.
func (l *Ledger) Credit(ctx context.Context, req CreditRequest) (Session, error) {
	if strings.TrimSpace(req.StudentID) == "" || strings.TrimSpace(req.SubjectID) == "" || strings.TrimSpace(req.Section) == "" {
		return Session{}, ErrIncompleteCredit
	}
	now := l.now().UTC()
	at := req.Date
	if at.IsZero() {
		at = now
	}
	code, err := l.allocateCode(ctx, creditCodePrefix, now)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		ID:            uuid.NewString(),
		SubjectID:     req.SubjectID,
		Section:       req.Section,
		Room:          creditRoom,
		Date:          at,
		Code:          code,
		OpensAt:       at,
		ExpiresAt:     at,
		DurationHours: 0,
		Present:       []string{req.StudentID},
		CreatedAt:     now,
	}
	if err := l.store.Create(ctx, &s); err != nil {
		return Session{}, fmt.Errorf("create credit session: %w", err)
	}
	metrics.SessionsOpened.WithLabelValues("credit").Inc()
	l.logger.Info("credit session recorded",
		zap.String("session_code", s.Code),
		zap.String("subject_id", s.SubjectID),
		zap.String("student_id", req.StudentID))
	return s, nil
}

func (l *Ledger) allocateCode(ctx context.Context, prefix string, now time.Time) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := prefix + l.newCode()
		active, err := l.store.CodeActive(ctx, code, now)
		if err != nil {
			return "", fmt.Errorf("check session code: %w", err)
		}
		if !active {
			return code, nil
		}
		l.logger.Debug("session code collision, retrying", zap.String("session_code", code))
	}
	return "", fmt.Errorf("no free session code after %d attempts", maxCodeAttempts)
}

// randomCode returns codeLength lowercase base36 characters.
func randomCode() string {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	s := strconv.FormatUint(v, 36)
	if len(s) < codeLength {
		s = strings.Repeat("0", codeLength-len(s)) + s
	}
	return s[len(s)-codeLength:]
}
