package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SESFromEmail string `env:"SES_FROM_EMAIL,required=true"`
	SESFromName  string `env:"SES_FROM_NAME,default=Report Card Distribution"`
	S3Bucket     string `env:"S3_BUCKET,required=true"`

	DispatchCron       string `env:"DISPATCH_CRON,default=*/10 * * * *"`
	DispatchTimezone   string `env:"DISPATCH_TIMEZONE,default="`
	DispatchBatchSize  int    `env:"DISPATCH_BATCH_SIZE,default=50"`
	DailySendCeiling   int    `env:"DAILY_SEND_CEILING,default=5000"`
	AttachmentTTLHours int    `env:"ATTACHMENT_TTL_HOURS,default=24"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
