package notify

import (
	"context"
	"time"
)

// Category classifies a notification.
type Category string

const (
	CategoryLowAttendance      Category = "low_attendance"
	CategoryClassReminder      Category = "class_reminder"
	CategoryGeneral            Category = "general"
	CategoryAttendanceRequest  Category = "attendance_request"
	CategorySelfStudyRequest   Category = "selfstudy_request"
	CategoryAttendanceDecision Category = "attendance_decision"
	CategorySelfStudyDecision  Category = "selfstudy_decision"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLowAttendance, CategoryClassReminder, CategoryGeneral,
		CategoryAttendanceRequest, CategorySelfStudyRequest,
		CategoryAttendanceDecision, CategorySelfStudyDecision:
		return true
	}
	return false
}

// Role of the recipient.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Notification is an inbox entry. Payload carries the numeric basis of the
// message, e.g. percentage, threshold and classes needed.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Role        Role           `json:"role"`
	Category    Category       `json:"category"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
	Read        bool           `json:"read"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Sink accepts notifications. Delivery is at-most-once best effort.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
	EmitBulk(ctx context.Context, ns []Notification) error
}

// Fanout copies a template notification to every recipient.
func Fanout(tmpl Notification, recipients []string) []Notification {
	out := make([]Notification, 0, len(recipients))
	for _, id := range recipients {
		n := tmpl
		n.RecipientID = id
		out = append(out, n)
	}
	return out
}
