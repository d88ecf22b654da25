package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/attendance"
	"classsync/internal/auth"
	"classsync/internal/httpmiddleware"
	"classsync/internal/notify"
	"classsync/internal/requests"
	"classsync/internal/roster"
)

// Options wires the router's collaborators.
type Options struct {
	Ledger     *attendance.Ledger
	Aggregator *analytics.Aggregator
	Requests   *requests.Service
	Students   roster.Students
	Subjects   roster.Subjects
	Sink       notify.Sink
	Inbox      notify.Inbox
	Logger     *zap.Logger

	SigningKey      string
	Issuer          string
	RateLimitPerMin int

	// Health probes reported by /healthz, keyed by dependency name.
	Health map[string]func(ctx context.Context) bool
}

type server struct {
	ledger   *attendance.Ledger
	agg      *analytics.Aggregator
	requests *requests.Service
	students roster.Students
	subjects roster.Subjects
	sink     notify.Sink
	inbox    notify.Inbox
	logger   *zap.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(o Options) *gin.Engine {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	s := &server{
		ledger:   o.Ledger,
		agg:      o.Aggregator,
		requests: o.Requests,
		students: o.Students,
		subjects: o.Subjects,
		sink:     o.Sink,
		inbox:    o.Inbox,
		logger:   o.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLog(o.Logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, probe := range o.Health {
			ok := probe(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	})

	limit := o.RateLimitPerMin
	if limit <= 0 {
		limit = 120
	}
	limiter := httpmiddleware.NewTokenBucket(limit, limit)

	v1 := r.Group("/v1",
		auth.Middleware(o.SigningKey, o.Issuer),
		limiter.Middleware(func(c *gin.Context) string {
			claims, _ := auth.FromContext(c)
			return claims.Subject
		}),
	)

	v1.GET("/sessions/:code", s.getSession)
	v1.GET("/notifications", s.listNotifications)
	v1.PATCH("/notifications/read", s.markRead)

	teacher := v1.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/sessions", s.openSession)
	teacher.GET("/sessions/:code/qr", s.sessionQR)
	teacher.GET("/sessions/:code/export", s.exportSession)
	teacher.POST("/credits", s.grantCredit)
	teacher.GET("/subjects/:subjectID/attendance", s.subjectAttendance)
	teacher.GET("/at-risk", s.atRisk)
	teacher.GET("/requests", s.teacherRequests)
	teacher.POST("/requests/:id/decision", s.decideRequest)

	student := v1.Group("", auth.RequireRole(auth.RoleStudent))
	student.POST("/checkins", s.checkIn)
	student.GET("/me/overview", s.overview)
	student.GET("/me/credit-summary", s.creditSummary)
	student.GET("/me/subjects/:subjectID/history", s.subjectHistory)
	student.POST("/me/self-study", s.submitSelfStudy)
	student.POST("/me/attendance-requests", s.submitCorrection)
	student.GET("/me/requests", s.myRequests)

	return r
}

func caller(c *gin.Context) auth.Claims {
	claims, _ := auth.FromContext(c)
	return claims
}
