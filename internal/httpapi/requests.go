package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classsync/internal/requests"
)

type selfStudyRequest struct {
	SubjectID   string `json:"subject_id" binding:"required"`
	Date        string `json:"date" binding:"required"` // YYYY-MM-DD
	Description string `json:"description"`
	FileURL     string `json:"file_url"`
}

type correctionRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	DateFrom  string `json:"date_from" binding:"required"`
	DateTo    string `json:"date_to"`
	Reason    string `json:"reason" binding:"required"`
}

type decisionRequest struct {
	Status string `json:"status" binding:"required,oneof=approved rejected"`
	Note   string `json:"note"`
}

func parseDay(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	d, err := time.Parse(time.DateOnly, v)
	return d, err == nil
}

func (s *server) submitSelfStudy(c *gin.Context) {
	var req selfStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	day, ok := parseDay(req.Date)
	if !ok {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	r, err := s.requests.Submit(c.Request.Context(), requests.Submission{
		Kind:      requests.KindSelfStudy,
		StudentID: caller(c).Subject,
		SubjectID: req.SubjectID,
		DateFrom:  day,
		Reason:    req.Description,
		FileURL:   req.FileURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *server) submitCorrection(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, ok := parseDay(req.DateFrom)
	to, ok2 := parseDay(req.DateTo)
	if !ok || !ok2 {
		badRequest(c, "dates must be YYYY-MM-DD")
		return
	}
	r, err := s.requests.Submit(c.Request.Context(), requests.Submission{
		Kind:      requests.KindCorrection,
		StudentID: caller(c).Subject,
		SubjectID: req.SubjectID,
		DateFrom:  from,
		DateTo:    to,
		Reason:    req.Reason,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *server) myRequests(c *gin.Context) {
	list, err := s.requests.ForStudent(c.Request.Context(), caller(c).Subject, requests.Kind(c.Query("kind")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (s *server) teacherRequests(c *gin.Context) {
	list, err := s.requests.ForTeacher(c.Request.Context(), caller(c).Subject,
		requests.Kind(c.Query("kind")), requests.Status(c.Query("status")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (s *server) decideRequest(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	out, err := s.requests.Decide(c.Request.Context(), caller(c).Subject, c.Param("id"), requests.Status(req.Status), req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
