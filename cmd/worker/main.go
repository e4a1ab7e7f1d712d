package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/config"
	"github.com/harborcare/careexport/internal/database"
	"github.com/harborcare/careexport/internal/repository"
	"github.com/harborcare/careexport/internal/s3storage"
	"github.com/harborcare/careexport/internal/worker"
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
	forms := repository.NewFormRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("init storage")
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logrus.WithError(err).Fatal("ensure buckets")
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	processor := worker.NewProcessor(exports, forms, store, cfg.ProgressBatch)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		logrus.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}
