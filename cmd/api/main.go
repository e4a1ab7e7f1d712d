package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/api"
	"github.com/harborcare/careexport/internal/config"
	"github.com/harborcare/careexport/internal/database"
	"github.com/harborcare/careexport/internal/repository"
	"github.com/harborcare/careexport/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logrus.WithError(err).Fatal("ensure schema")
	}

	exports := repository.NewExportRepository(pool)
	audit := repository.NewAuditRepository(pool)
	entitlements := repository.NewEntitlementRepository(pool)
	forms := repository.NewFormRepository(pool)
	if err := entitlements.Seed(ctx); err != nil {
		logrus.WithError(err).Fatal("seed entitlements")
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("init storage")
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logrus.WithError(err).Fatal("ensure buckets")
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	srv := api.New(cfg, exports, audit, entitlements, forms, store, queueClient)
	if err := srv.Run(ctx); err != nil {
		logrus.WithError(err).Error("api stopped")
		os.Exit(1)
	}
}
