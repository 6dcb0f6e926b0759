package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/handler"
	"github.com/pawtograder/office-hours/internal/repository"
	"github.com/pawtograder/office-hours/internal/service"
	"github.com/pawtograder/office-hours/pkg/cache"
	"github.com/pawtograder/office-hours/pkg/config"
	"github.com/pawtograder/office-hours/pkg/database"
	"github.com/pawtograder/office-hours/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	logr = logr.Named("invalidation-worker")

	if err := run(cfg, logr); err != nil {
		logr.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	if cfg.Invalidation.RevalidateURL == "" {
		logr.Warn("REVALIDATE_URL not set; only the response cache will be purged")
	}

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, 0, logr, redisClient != nil)
	worker := service.NewInvalidationWorker(repository.NewInvalidationRepository(db), cacheSvc, service.InvalidationWorkerConfig{
		RevalidateURL:    cfg.Invalidation.RevalidateURL,
		RevalidateSecret: cfg.Invalidation.RevalidateSecret,
		PollInterval:     cfg.Invalidation.PollInterval,
		Workers:          cfg.Invalidation.Workers,
		Retries:          cfg.Invalidation.Retries,
		RequestTimeout:   cfg.Invalidation.RequestTimeout,
		Metrics:          metrics,
		Logger:           logr,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	probes := handler.NewMetricsHandler(metrics, db, nil)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", probes.Health)
	r.GET("/ready", probes.Ready)
	r.GET("/metrics", probes.Prometheus)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("probe server failed", zap.Error(err))
		}
	}()

	logr.Info("worker starting", zap.Duration("poll_interval", cfg.Invalidation.PollInterval))
	err = worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logr.Info("worker stopped")
	return err
}
