package main

import (
	"github.com/caarlos0/env/v11"
)

// config holds the setup configuration.
// Every part is optional and is set up only when its URL is set.
type config struct {
	PostgresDSN string `env:"BRICKVIEW_POSTGRES_DSN"`
	S3URL       string `env:"BRICKVIEW_S3_URL"`
	S3Bucket    string `env:"BRICKVIEW_S3_BUCKET"`
	AMQPURL     string `env:"BRICKVIEW_AMQP_URL"`
	AMQPQueue   string `env:"BRICKVIEW_AMQP_QUEUE"`
	NATSURL     string `env:"BRICKVIEW_NATS_URL"`
	NATSBucket  string `env:"BRICKVIEW_NATS_BUCKET"`
}

// parseConfig parses the setup configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
