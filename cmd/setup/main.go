// Command setup prepares the storage and messaging the viewer reads from.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/brickview/internal/app"
	"github.com/k11v/brickview/internal/app/apps3"
)

func main() {
	if err := run(context.Background(), os.Environ()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(ctx context.Context, environ []string) error {
	cfg, err := parseConfig(environ)
	if err != nil {
		return err
	}

	if cfg.PostgresDSN != "" {
		if err = app.SetupPostgres(cfg.PostgresDSN); err != nil {
			return err
		}
		slog.Info("set up postgres")
	}

	if cfg.S3URL != "" {
		client, err := apps3.NewClient(cfg.S3URL)
		if err != nil {
			return err
		}
		bucket := cfg.S3Bucket
		if bucket == "" {
			bucket = apps3.DefaultBucketName
		}
		if err = apps3.Setup(ctx, client, bucket); err != nil {
			return err
		}
		slog.Info("set up s3", "bucket", bucket)
	}

	if cfg.AMQPURL != "" {
		if err = setupAMQP(cfg.AMQPURL, cfg.AMQPQueue); err != nil {
			return err
		}
		slog.Info("set up amqp")
	}

	if cfg.NATSURL != "" {
		conn, _, err := app.NewNATSKeyValue(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return err
		}
		conn.Close()
		slog.Info("set up nats")
	}

	return nil
}

func setupAMQP(connectionString string, queue string) error {
	if queue == "" {
		queue = app.AMQPQueueBuildsSnapshot
	}

	conn, err := amqp091.Dial(connectionString)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Close()
	}()

	_, err = app.DeclareAMQPQueue(ch, queue)
	return err
}
