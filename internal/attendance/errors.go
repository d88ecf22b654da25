package attendance

import "errors"

// Check-in and session errors. All are caused by the client and never retried.
var (
	ErrInvalidLocation       = errors.New("location permission required to start session")
	ErrSessionNotFound       = errors.New("invalid session code")
	ErrNotStarted            = errors.New("session not started yet")
	ErrExpired               = errors.New("session expired")
	ErrLocationNotConfigured = errors.New("teacher location not set for this session")
	ErrLocationRequired      = errors.New("location permission required to mark attendance")
	ErrOutOfRange            = errors.New("you are too far from the classroom")
	ErrAlreadyMarked         = errors.New("attendance already marked for this session")
	ErrStudentRequired       = errors.New("student identity required")
	ErrIncompleteCredit      = errors.New("subject, student and section required for credit")
)

var reasons = []struct {
	err  error
	code string
}{
	{ErrInvalidLocation, "invalid_location"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrNotStarted, "not_started"},
	{ErrExpired, "expired"},
	{ErrLocationNotConfigured, "location_not_configured"},
	{ErrLocationRequired, "location_required"},
	{ErrOutOfRange, "out_of_range"},
	{ErrAlreadyMarked, "already_marked"},
	{ErrStudentRequired, "student_required"},
	{ErrIncompleteCredit, "incomplete_credit"},
}

// Reason returns a stable machine code for err: "ok" for nil, "internal" for
// anything outside the client error set.
func Reason(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "internal"
}

// IsClientError reports whether err is one of the client-caused errors.
func IsClientError(err error) bool {
	r := Reason(err)
	return r != "ok" && r != "internal"
}
