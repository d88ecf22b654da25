package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classsync/internal/attendance"
	"classsync/internal/auth"
	"classsync/internal/geo"
	"classsync/internal/notify"
	"classsync/internal/roster"
)

type openSessionRequest struct {
	SubjectID     string   `json:"subject_id" binding:"required"`
	Section       string   `json:"section" binding:"required"`
	Room          string   `json:"room"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	DurationHours float64  `json:"duration_hours"`
	WindowMinutes int      `json:"window_minutes"`
}

type sessionView struct {
	attendance.Session
	State        attendance.State `json:"state"`
	PresentCount int              `json:"present_count"`
}

func view(s attendance.Session, state attendance.State) sessionView {
	return sessionView{Session: s, State: state, PresentCount: len(s.Present)}
}

// ownedSubject loads the subject and checks the teacher may act on it.
// Subjects without an owner are open to any teacher.
func (s *server) ownedSubject(ctx context.Context, subjectID, teacherID string) (*roster.Subject, error) {
	sub, err := s.subjects.SubjectByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errSubjectNotFound
	}
	if sub.TeacherID != "" && sub.TeacherID != teacherID {
		return nil, errNotYourSubject
	}
	return sub, nil
}

func (s *server) openSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if _, err := s.ownedSubject(ctx, req.SubjectID, caller(c).Subject); err != nil {
		s.fail(c, err)
		return
	}

	var anchor *geo.Point
	if req.Lat != nil && req.Lng != nil {
		anchor = &geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	sess, err := s.ledger.Open(ctx, attendance.OpenRequest{
		SubjectID:     req.SubjectID,
		Section:       req.Section,
		Room:          req.Room,
		Anchor:        anchor,
		DurationHours: req.DurationHours,
		Window:        time.Duration(req.WindowMinutes) * time.Minute,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(sess, attendance.StateOpen))
}

type presentStudent struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

func (s *server) getSession(c *gin.Context) {
	ctx := c.Request.Context()
	sess, state, err := s.ledger.Lookup(ctx, c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	v := view(sess, state)
	if caller(c).Role != auth.RoleTeacher {
		v.Present = nil
		v.Anchor = nil
		c.JSON(http.StatusOK, v)
		return
	}

	enrolled, err := s.students.StudentsInSection(ctx, sess.Section)
	if err != nil {
		s.fail(c, err)
		return
	}
	byID := make(map[string]roster.Student, len(enrolled))
	for _, stu := range enrolled {
		byID[stu.ID] = stu
	}
	present := make([]presentStudent, 0, len(sess.Present))
	for _, id := range sess.Present {
		stu := byID[id]
		present = append(present, presentStudent{ID: id, Name: stu.Name, ExternalID: stu.ExternalID})
	}
	c.JSON(http.StatusOK, gin.H{"session": v, "students": present})
}

type checkInRequest struct {
	Code string   `json:"code" binding:"required"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

func (s *server) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var loc *geo.Point
	if req.Lat != nil && req.Lng != nil {
		loc = &geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	out, err := s.ledger.CheckIn(c.Request.Context(), attendance.Attempt{
		StudentID: caller(c).Subject,
		Code:      req.Code,
		Location:  loc,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_code":    out.Session.Code,
		"subject_id":      out.Session.SubjectID,
		"distance_meters": out.Distance,
		"marked_at":       out.MarkedAt,
	})
}

type creditRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
	Date      string `json:"date"` // YYYY-MM-DD, defaults to today
}

func (s *server) grantCredit(c *gin.Context) {
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var day time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	ctx := c.Request.Context()
	sub, err := s.ownedSubject(ctx, req.SubjectID, caller(c).Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	stu, err := s.students.StudentByID(ctx, req.StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if stu == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "student not found", "code": "student_not_found"})
		return
	}

	sess, err := s.ledger.Credit(ctx, attendance.CreditRequest{
		SubjectID: sub.ID,
		StudentID: stu.ID,
		Section:   stu.Section,
		Date:      day,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	n := notify.Notification{
		RecipientID: stu.ID,
		Role:        notify.RoleStudent,
		Category:    notify.CategorySelfStudyDecision,
		Title:       "Self-study approved",
		Message:     "Your self-study for " + sub.Name + " (" + sub.Code + ") on " + sess.Date.Format(time.DateOnly) + " was approved and counted as attended.",
		Payload: map[string]any{
			"subject_id":   sub.ID,
			"subject_code": sub.Code,
			"session_code": sess.Code,
			"date":         sess.Date.Format(time.DateOnly),
		},
	}
	if err := s.sink.Emit(ctx, n); err != nil {
		s.logger.Warn("credit notification not delivered", zap.String("student_id", stu.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, view(sess, sess.StateAt(time.Now())))
}
