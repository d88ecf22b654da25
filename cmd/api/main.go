package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classsync/internal/analytics"
	"classsync/internal/attendance"
	"classsync/internal/config"
	"classsync/internal/httpapi"
	"classsync/internal/logging"
	"classsync/internal/notify"
	"classsync/internal/queue"
	"classsync/internal/requests"
	"classsync/internal/roster"
	"classsync/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	defer logger.Sync()

	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("detail", w))
	}

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db.Client, logger); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	sessions := attendance.NewRepository(db.Client)
	catalogue := roster.NewRepository(db.Client)
	notifications := notify.NewRepository(db.Client)

	// Without a shared queue the API drains its own in-process queue.
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		ch, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		go notify.Consume(ctx, ch, notifications, logger.Named("notify"))
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.NotificationsKey, logger)
	}
	sink := notify.NewQueueSink(q)

	ledger := attendance.NewLedger(sessions, attendance.Policy{
		FenceRadiusMeters: cfg.Policy.FenceRadiusMeters,
		Window:            cfg.Policy.CheckInWindow,
		DurationHours:     cfg.Policy.SessionDurationHours,
	}, logger.Named("ledger"))
	agg := analytics.NewAggregator(sessions, catalogue, catalogue, cfg.Policy.LowAttendanceThreshold, logger.Named("analytics"))
	desk := requests.NewService(requests.NewRepository(db.Client), ledger, catalogue, catalogue, sink, logger.Named("requests"))

	router := httpapi.NewRouter(httpapi.Options{
		Ledger:          ledger,
		Aggregator:      agg,
		Requests:        desk,
		Students:        catalogue,
		Subjects:        catalogue,
		Sink:            sink,
		Inbox:           notifications,
		Logger:          logger.Named("http"),
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health: map[string]func(context.Context) bool{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
