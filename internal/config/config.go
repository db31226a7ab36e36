package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string        `env:"DATABASE_DSN,required=true"`
	RedisURL            string        `env:"REDIS_URL,required=true"`
	ProviderWebhookURL  string        `env:"PROVIDER_WEBHOOK_URL"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT,default=10s"`
	PollInterval        time.Duration `env:"POLL_INTERVAL,default=3s"`
	BatchSize           int           `env:"BATCH_SIZE,default=5"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY,default=4"`
	MaxAttempts         int           `env:"MAX_ATTEMPTS,default=1"`
	RateLimitPerSec     int           `env:"RATE_LIMIT_PER_SEC,default=100"`
	APIPort             int           `env:"API_PORT,default=8080"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
