package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/attendance"
	"classsync/internal/requests"
)

var (
	errSubjectNotFound = errors.New("subject not found")
	errNotYourSubject  = errors.New("subject belongs to another teacher")
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		return http.StatusNotFound, attendance.Reason(err)
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return http.StatusConflict, attendance.Reason(err)
	case attendance.IsClientError(err):
		return http.StatusBadRequest, attendance.Reason(err)
	case errors.Is(err, analytics.ErrStudentNotFound):
		return http.StatusNotFound, "student_not_found"
	case errors.Is(err, errSubjectNotFound):
		return http.StatusNotFound, "subject_not_found"
	case errors.Is(err, errNotYourSubject), errors.Is(err, requests.ErrNotYourSubject):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound, "request_not_found"
	case errors.Is(err, requests.ErrInvalid):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, requests.ErrAlreadyDecided):
		return http.StatusConflict, "already_decided"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
