package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"imagehive/internal/cache"
	"imagehive/internal/config"
	"imagehive/internal/database"
	"imagehive/internal/log"
	"imagehive/internal/pipeline"
	"imagehive/internal/queue"
	"imagehive/internal/repository"
	"imagehive/internal/results"
	"imagehive/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	imageRepo := repository.NewImageRepository(dbPool)
	index := results.NewIndex(redisClient)

	worker := pipeline.New(objectStore, imageRepo, index, cfg.Sweep.Retention, logger)
	consumer := queue.NewConsumer(
		redisClient,
		cfg.Queue.Stream,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		worker,
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
