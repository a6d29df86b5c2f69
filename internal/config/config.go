package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	QueueName     string `env:"QUEUE_NAME"     envDefault:"summarize"`
	DBPath        string `env:"DB_PATH"        envDefault:"summaries.sqlite"`

	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	Model            string `env:"MODEL"              envDefault:"grok-2-latest"`
	MaxSummaryTokens int64  `env:"MAX_SUMMARY_TOKENS" envDefault:"1000"`

	MaxSourceBytes    int           `env:"MAX_SOURCE_BYTES"   envDefault:"1048576"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"    envDefault:"60s"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"300s"`
	PollTimeout       time.Duration `env:"POLL_TIMEOUT"       envDefault:"5s"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS"       envDefault:"3"`
	BackoffBase       time.Duration `env:"BACKOFF_BASE"       envDefault:"2s"`
	WorkerCount       int           `env:"WORKER_COUNT"       envDefault:"4"`
	ReaperInterval    time.Duration `env:"REAPER_INTERVAL"    envDefault:"30s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	// A request outliving the lease would race its own redelivery.
	if cfg.RequestTimeout >= cfg.VisibilityTimeout {
		return Config{}, fmt.Errorf(
			"REQUEST_TIMEOUT (%s) must be below VISIBILITY_TIMEOUT (%s)",
			cfg.RequestTimeout,
			cfg.VisibilityTimeout,
		)
	}

	return cfg, nil
}
