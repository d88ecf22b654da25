package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/attendance"
	"classsync/internal/config"
	"classsync/internal/logging"
	"classsync/internal/notify"
	"classsync/internal/queue"
	"classsync/internal/roster"
	"classsync/internal/scheduler"
	"classsync/internal/store"
)

// Worker runs the notification drivers and persists queued notifications.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env).Named("worker")
	defer logger.Sync()

	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("detail", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db.Client, logger); err != nil {
			logger.Fatal("migrate failed", zap.Error(err))
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	sessions := attendance.NewRepository(db.Client)
	catalogue := roster.NewRepository(db.Client)
	notifications := notify.NewRepository(db.Client)
	agg := analytics.NewAggregator(sessions, catalogue, catalogue, cfg.Policy.LowAttendanceThreshold, logger.Named("analytics"))

	var suppressor notify.Suppressor = notify.NoCooldown{}
	if ttl := cfg.Policy.LowAttendanceCooldown; ttl > 0 {
		if cfg.QueueBackend == "memory" {
			suppressor = notify.NewMemoryCooldown(ttl)
		} else {
			suppressor = notify.NewRedisCooldown(redisClient.Client, ttl)
		}
		logger.Info("low attendance cooldown enabled", zap.Duration("ttl", ttl))
	}

	sched := scheduler.New(scheduler.Deps{
		Stats:      agg,
		Subjects:   catalogue,
		Students:   catalogue,
		Timetable:  catalogue,
		Sink:       notifications,
		Suppressor: suppressor,
	}, scheduler.Config{
		Threshold:        cfg.Policy.LowAttendanceThreshold,
		Lookahead:        cfg.Policy.ReminderLookahead,
		AggregationEvery: cfg.Policy.AggregationEvery,
		ReminderEvery:    cfg.Policy.ReminderEvery,
		Location:         cfg.Location(),
	}, logger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sched.Stop()

	if cfg.QueueBackend == "memory" {
		logger.Info("memory queue backend, API drains its own queue")
		<-ctx.Done()
		logger.Info("worker stopped")
		return
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.NotificationsKey, logger)
	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages")
	saved := notify.Consume(ctx, messages, notifications, logger)
	logger.Info("worker stopped", zap.Int("persisted", saved))
}
