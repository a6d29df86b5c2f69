package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"summaryd/internal/config"
	"summaryd/internal/queue"
	"summaryd/internal/resultstore"
	"summaryd/internal/server"
	"summaryd/internal/service"
	"summaryd/internal/statusstore"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file loaded",
			"error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config",
			"error", err)

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("Failed to close Redis client",
				"error", err)
		}
	}()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to reach Redis",
			"error", err,
			"addr", cfg.RedisAddr)

		return
	}
	log.Info("Redis connection successful",
		"addr", cfg.RedisAddr)

	results, err := resultstore.NewSQLiteStore(ctx, cfg.DBPath, log)
	if err != nil {
		log.Error("Failed to initialize result store",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Error("Failed to close result store",
				"error", err)
		}
	}()

	statuses := statusstore.NewRedisStore(rdb)
	q := queue.NewRedisQueue(rdb, cfg.QueueName, cfg.VisibilityTimeout)
	svc := service.New(statuses, results, q, cfg.MaxSourceBytes, log)
	srv := server.New(svc, statuses, results, q, log)

	go func() {
		if err := srv.Listen(cfg.ListenAddr); err != nil {
			log.Error("HTTP server stopped",
				"error", err)
			cancel()
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
	case <-ctx.Done():
	}
	log.Info("Exiting...")

	if err := srv.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server",
			"error", err)
	}
}
