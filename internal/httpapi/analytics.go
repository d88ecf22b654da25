package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classsync/internal/analytics"
	"classsync/internal/roster"
)

type statView struct {
	analytics.Stat
	RoundedPercent int     `json:"rounded_percent"`
	DisplayPercent float64 `json:"display_percent"`
}

func statViews(stats []analytics.Stat) []statView {
	out := make([]statView, 0, len(stats))
	for _, st := range stats {
		out = append(out, statView{Stat: st, RoundedPercent: st.RoundedPercent(), DisplayPercent: st.DisplayPercent()})
	}
	return out
}

func (s *server) subjectAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.ownedSubject(ctx, c.Param("subjectID"), caller(c).Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats, err := s.agg.SubjectStats(ctx, sub.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject":   sub,
		"threshold": s.agg.Threshold(),
		"students":  statViews(stats),
	})
}

func (s *server) atRisk(c *gin.Context) {
	threshold := 0.0
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 || t > 100 {
			badRequest(c, "threshold must be a number in (0, 100]")
			return
		}
		threshold = t
	}
	risk, err := s.agg.AtRiskForTeacher(c.Request.Context(), caller(c).Subject, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	if threshold == 0 {
		threshold = s.agg.Threshold()
	}
	type subjectRisk struct {
		Subject  roster.Subject `json:"subject"`
		Students []statView     `json:"students"`
	}
	out := make([]subjectRisk, 0, len(risk))
	for _, r := range risk {
		out = append(out, subjectRisk{Subject: r.Subject, Students: statViews(r.Students)})
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "subjects": out})
}

func (s *server) overview(c *gin.Context) {
	ov, err := s.agg.StudentOverview(c.Request.Context(), caller(c).Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (s *server) creditSummary(c *gin.Context) {
	sum, err := s.agg.CreditSummary(c.Request.Context(), caller(c).Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) subjectHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.subjects.SubjectByID(ctx, c.Param("subjectID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if sub == nil {
		s.fail(c, errSubjectNotFound)
		return
	}
	history, err := s.agg.SubjectHistory(ctx, caller(c).Subject, sub.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject_id":   sub.ID,
		"subject_code": sub.Code,
		"history":      history,
	})
}
