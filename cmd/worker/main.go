package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"moxie/internal/cache"
	"moxie/internal/config"
	"moxie/internal/db"
	"moxie/internal/logging"
	"moxie/internal/metrics"
	"moxie/internal/processor"
	"moxie/internal/queue"
	"moxie/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		logger.Errorf("invalid log level: %v", err)
		os.Exit(1)
	}

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, cfg.DBURL); err != nil {
			logger.Errorf("db migration failed: %v", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, int32(cfg.WorkerCount+2))
	if err != nil {
		logger.Errorf("db connection failed: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Errorf("invalid redis url: %v", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	m := metrics.NewManager()
	if cfg.MetricsEnabled {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Infof("serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	proc := processor.NewReportProcessor(
		ctx,
		report.NewBuilder(cfg.InstantSet(), report.WithMaxRecordBytes(cfg.MaxRecordBytes)),
		db.NewUploadStore(pool),
		db.NewReportWriter(pool),
		cache.NewReportCache(redisClient, cfg.ResultTTL),
		db.NewViewRefresher(pool, db.ReportViews),
		m,
	)
	q := queue.NewRedisQueue(redisClient, cfg.RedisQueue)

	handler := func(payload []byte) error {
		return proc.Handle(payload)
	}

	if cfg.WorkerCount > 1 {
		logger.Infof("starting concurrent consumption with %d workers", cfg.WorkerCount)
		if err := q.ConsumeConcurrent(ctx, cfg.WorkerCount, cfg.JobBufferSize, handler); err != nil && ctx.Err() == nil {
			logger.Errorf("queue consumption ended: %v", err)
			os.Exit(1)
		}
	} else {
		logger.Infof("starting single-threaded consumption")
		if err := q.Consume(ctx, handler); err != nil && ctx.Err() == nil {
			logger.Errorf("queue consumption ended: %v", err)
			os.Exit(1)
		}
	}
}
