package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	BackendBaseURL       string `env:"BACKEND_BASE_URL,required=true"`
	ReminderDaysAhead    int    `env:"REMINDER_DAYS_AHEAD,default=14"`
	ExpirationDayEnabled bool   `env:"EXPIRATION_DAY_ENABLED,default=true"`
	MaxRetries           int    `env:"MAX_RETRIES,default=3"`
	DispatchScanSeconds  int    `env:"DISPATCH_SCAN_SECONDS,default=30"`
	DispatchScanLimit    int    `env:"DISPATCH_SCAN_LIMIT,default=100"`
	RetentionMaxAgeHours int    `env:"RETENTION_MAX_AGE_HOURS,default=720"`
	CleanupScanMinutes   int    `env:"CLEANUP_SCAN_MINUTES,default=60"`
	ReceiptConcurrency   int    `env:"RECEIPT_CONCURRENCY,default=4"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
