package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/logging"
	"classsync/internal/metrics"
	"classsync/internal/notify"
	"classsync/internal/roster"
)

const (
	jobLowAttendance = "low_attendance"
	jobReminders     = "class_reminder"
)

// StatsSource computes per-student stats for one subject.
type StatsSource interface {
	SubjectStats(ctx context.Context, subjectID string) ([]analytics.Stat, error)
}

// Config holds the driver cadences and thresholds.
type Config struct {
	Threshold        float64
	Lookahead        time.Duration
	AggregationEvery time.Duration
	ReminderEvery    time.Duration
	JobTimeout       time.Duration
	Location         *time.Location
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = analytics.DefaultThreshold
	}
	if c.Lookahead <= 0 {
		c.Lookahead = 15 * time.Minute
	}
	if c.AggregationEvery <= 0 {
		c.AggregationEvery = time.Minute
	}
	if c.ReminderEvery <= 0 {
		c.ReminderEvery = 5 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

// Deps are the collaborators the drivers read from and write to.
type Deps struct {
	Stats      StatsSource
	Subjects   roster.Subjects
	Students   roster.Students
	Timetable  roster.Timetable
	Sink       notify.Sink
	Suppressor notify.Suppressor
}

// Scheduler runs the low-attendance and class-reminder drivers on cron.
// Neither driver mutates sessions or the timetable.
type Scheduler struct {
	cron   *cron.Cron
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New wires a scheduler. Call Start to begin ticking.
func New(deps Deps, cfg Config, logger *zap.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Suppressor == nil {
		deps.Suppressor = notify.NoCooldown{}
	}
	cl := logging.NewCronLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start registers both drivers and starts the cron engine.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context) (Report, error)
	}{
		{jobLowAttendance, s.cfg.AggregationEvery, s.RunLowAttendance},
		{jobReminders, s.cfg.ReminderEvery, s.RunReminders},
	}
	for _, j := range jobs {
		j := j
		spec := fmt.Sprintf("@every %s", j.every)
		if _, err := s.cron.AddFunc(spec, func() { s.tick(j.name, j.run) }); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
		s.logger.Info("job scheduled", zap.String("job", j.name), zap.String("spec", spec))
	}
	s.cron.Start()
	s.logger.Info("notification scheduler started")
	return nil
}

// Stop halts the engine and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping notification scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("notification scheduler stopped")
}

func (s *Scheduler) tick(job string, run func(context.Context) (Report, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	rep, err := run(ctx)
	metrics.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err != nil:
		result = "error"
		s.logger.Error("job failed", zap.String("job", job), zap.Error(err))
	case rep.Failed > 0:
		result = "partial"
	}
	metrics.JobRuns.WithLabelValues(job, result).Inc()
	s.logger.Info("job finished",
		zap.String("job", job),
		zap.Int("units", rep.Units),
		zap.Int("failed", rep.Failed),
		zap.Int("emitted", rep.Emitted),
		zap.Int("suppressed", rep.Suppressed),
		zap.Duration("took", time.Since(start)))
}

// Report summarises one driver run. A unit is a subject or a slot. Failed
// counts units that could not be read plus deliveries the sink rejected.
type Report struct {
	Units      int
	Failed     int
	Emitted    int
	Suppressed int
}
