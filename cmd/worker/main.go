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
	"summaryd/internal/scheduler"
	"summaryd/internal/statusstore"
	"summaryd/internal/summarizer"
	"summaryd/internal/worker"
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

	if cfg.OpenAIAPIKey == "" {
		log.Error("OPENAI_API_KEY is required")

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

	summ, err := summarizer.NewOpenAISummarizer(summarizer.OpenAIConfig{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxSummaryTokens,
		RequestTimeout:  cfg.RequestTimeout,
	})
	if err != nil {
		log.Error("Failed to create summarizer",
			"error", err)

		return
	}
	log.Info("Summarizer is initialized",
		"model", cfg.Model)

	statuses := statusstore.NewRedisStore(rdb)
	q := queue.NewRedisQueue(rdb, cfg.QueueName, cfg.VisibilityTimeout)

	reaper := scheduler.New(ctx, q, cfg.ReaperInterval, log)
	if err := reaper.Start(); err != nil {
		log.Error("Failed to start lease reaper",
			"error", err)

		return
	}
	defer reaper.Stop()
	log.Info("Lease reaper is started",
		"interval", cfg.ReaperInterval)

	w := worker.New(statuses, results, q, summ, worker.Config{
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		PollTimeout: cfg.PollTimeout,
	}, log)
	pool := worker.NewPool(w, cfg.WorkerCount, log)

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info("Exiting...")

	cancel()
	<-done
}
