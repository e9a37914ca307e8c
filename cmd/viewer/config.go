package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/k11v/brickview/internal/server"
)

const (
	sourcePostgres = "postgres"
	sourceAMQP     = "amqp"
	sourceNATS     = "nats"
	sourceFile     = "file"

	contentS3   = "s3"
	contentFile = "file"
)

// config holds the application configuration.
type config struct {
	Development bool   `env:"BRICKVIEW_DEVELOPMENT"`
	Source      string `env:"BRICKVIEW_SOURCE"`  // default: "postgres"
	Content     string `env:"BRICKVIEW_CONTENT"` // default: "s3"

	Postgres postgresConfig `envPrefix:"BRICKVIEW_POSTGRES_"`
	AMQP     amqpConfig     `envPrefix:"BRICKVIEW_AMQP_"`
	NATS     natsConfig     `envPrefix:"BRICKVIEW_NATS_"`
	File     fileConfig     `envPrefix:"BRICKVIEW_FILE_"`
	S3       s3Config       `envPrefix:"BRICKVIEW_S3_"`
	Render   renderConfig   `envPrefix:"BRICKVIEW_RENDER_"`
	Server   server.Config  `envPrefix:"BRICKVIEW_SERVER_"`
}

type postgresConfig struct {
	DSN          string        `env:"DSN"`           // required for the postgres source
	PollInterval time.Duration `env:"POLL_INTERVAL"` // optional
}

type amqpConfig struct {
	URL   string `env:"URL"`   // required for the amqp source
	Queue string `env:"QUEUE"` // optional
}

type natsConfig struct {
	URL    string `env:"URL"`    // required for the nats source
	Bucket string `env:"BUCKET"` // optional
}

type fileConfig struct {
	BuildsPath   string `env:"BUILDS_PATH"`   // required for the file source
	ArtifactsDir string `env:"ARTIFACTS_DIR"` // required for the file content store
}

type s3Config struct {
	URL    string `env:"URL"`    // required for the s3 content store
	Bucket string `env:"BUCKET"` // optional
}

type renderConfig struct {
	Width       int `env:"WIDTH"`       // optional
	Concurrency int `env:"CONCURRENCY"` // optional
}

func (c *config) source() string {
	s := c.Source
	if s == "" {
		s = sourcePostgres
	}
	return s
}

func (c *config) content() string {
	s := c.Content
	if s == "" {
		s = contentS3
	}
	return s
}

// parseConfig parses the application configuration from the environment variables.
// Variables from envFile fill in what environ leaves unset.
func parseConfig(environ []string, envFile string) (*config, error) {
	environment := env.ToMap(environ)

	fileEnvironment, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		maps.Copy(fileEnvironment, environment)
		environment = fileEnvironment
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg config
	err = env.ParseWithOptions(&cfg, env.Options{
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err = cfg.validate(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func (c *config) validate() error {
	switch c.source() {
	case sourcePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("missing BRICKVIEW_POSTGRES_DSN")
		}
	case sourceAMQP:
		if c.AMQP.URL == "" {
			return errors.New("missing BRICKVIEW_AMQP_URL")
		}
	case sourceNATS:
		if c.NATS.URL == "" {
			return errors.New("missing BRICKVIEW_NATS_URL")
		}
	case sourceFile:
		if c.File.BuildsPath == "" {
			return errors.New("missing BRICKVIEW_FILE_BUILDS_PATH")
		}
	default:
		return fmt.Errorf("unknown BRICKVIEW_SOURCE %q", c.Source)
	}

	switch c.content() {
	case contentS3:
		if c.S3.URL == "" {
			return errors.New("missing BRICKVIEW_S3_URL")
		}
	case contentFile:
		if c.File.ArtifactsDir == "" {
			return errors.New("missing BRICKVIEW_FILE_ARTIFACTS_DIR")
		}
	default:
		return fmt.Errorf("unknown BRICKVIEW_CONTENT %q", c.Content)
	}

	return nil
}
