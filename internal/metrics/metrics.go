package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts check-in attempts by outcome reason.
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "checkins_total",
		Help:      "Check-in attempts by outcome.",
	}, []string{"reason"})

	// SessionsOpened counts sessions created, split by kind (live or credit).
	SessionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "sessions_opened_total",
		Help:      "Attendance sessions created.",
	}, []string{"kind"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "scheduler_runs_total",
		Help:      "Scheduler job runs by job and result.",
	}, []string{"job", "result"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classsync",
		Name:      "scheduler_job_duration_seconds",
		Help:      "Wall time of a scheduler job run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "notifications_emitted_total",
		Help:      "Notifications handed to the sink by category.",
	}, []string{"category"})

	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "notifications_suppressed_total",
		Help:      "Notifications dropped by the cooldown policy.",
	}, []string{"category"})

	// Requests counts self-study and correction requests by kind and the
	// status they moved to.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classsync",
		Name:      "student_requests_total",
		Help:      "Student requests submitted and decided.",
	}, []string{"kind", "status"})
)
