package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// sessionQR renders the check-in code as a PNG for projection in class.
func (s *server) sessionQR(c *gin.Context) {
	ctx := c.Request.Context()
	sess, _, err := s.ledger.Lookup(ctx, c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.ownedSubject(ctx, sess.SubjectID, caller(c).Subject); err != nil {
		s.fail(c, err)
		return
	}
	png, err := qrcode.Encode(sess.Code, qrcode.Medium, qrSize)
	if err != nil {
		s.fail(c, fmt.Errorf("encode qr: %w", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

var exportHeader = []string{"USN", "Name", "Subject", "Date", "Section", "Room", "Status"}

// exportSession writes one CSV row per enrolled student of the section.
func (s *server) exportSession(c *gin.Context) {
	ctx := c.Request.Context()
	sess, _, err := s.ledger.Lookup(ctx, c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	sub, err := s.ownedSubject(ctx, sess.SubjectID, caller(c).Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	students, err := s.students.StudentsInSection(ctx, sess.Section)
	if err != nil {
		s.fail(c, err)
		return
	}

	day := sess.EffectiveDate().Format(time.DateOnly)
	filename := fmt.Sprintf("attendance_%s_%s_%s.csv", sub.Code, sess.Section, day)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for _, stu := range students {
		status := "Absent"
		if sess.IsPresent(stu.ID) {
			status = "Present"
		}
		_ = w.Write([]string{stu.ExternalID, stu.Name, sub.Code, day, sess.Section, sess.Room, status})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}
