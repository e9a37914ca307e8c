// Package containertest starts throwaway service containers for integration tests.
// Every helper skips the test in short mode.
package containertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func start(tb testing.TB, ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping container test in short mode")
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	testcontainers.CleanupContainer(tb, c)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return c
}

func mustEndpoint(tb testing.TB, ctx context.Context, c testcontainers.Container, port nat.Port) string {
	tb.Helper()
	endpoint, err := c.PortEndpoint(ctx, port, "")
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return endpoint
}

// Postgres returns a connection string to an empty database.
func Postgres(tb testing.TB, ctx context.Context) string {
	tb.Helper()

	c := start(tb, ctx, testcontainers.ContainerRequest{
		Image: "postgres:17-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})

	return fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", mustEndpoint(tb, ctx, c, "5432/tcp"))
}

// MinIO returns a connection string in the format apps3.NewClient expects.
func MinIO(tb testing.TB, ctx context.Context) string {
	tb.Helper()

	username := "minioadmin"
	password := "minioadmin"

	c := start(tb, ctx, testcontainers.ContainerRequest{
		Image:        "quay.io/minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000"),
		Env: map[string]string{
			"MINIO_ROOT_USER":     username,
			"MINIO_ROOT_PASSWORD": password,
		},
		Cmd: []string{"server", "/data"},
	})

	return fmt.Sprintf("http://%s:%s@%s", username, password, mustEndpoint(tb, ctx, c, "9000/tcp"))
}

// RabbitMQ returns an AMQP connection string.
func RabbitMQ(tb testing.TB, ctx context.Context) string {
	tb.Helper()

	username := "guest"
	password := "guest"

	c := start(tb, ctx, testcontainers.ContainerRequest{
		Image: "rabbitmq:4.0-alpine",
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": username,
			"RABBITMQ_DEFAULT_PASS": password,
		},
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog(".*Server startup complete.*").AsRegexp().WithStartupTimeout(60 * time.Second),
	})

	return fmt.Sprintf("amqp://%s:%s@%s", username, password, mustEndpoint(tb, ctx, c, "5672/tcp"))
}

// NATS returns the URL of a NATS server with JetStream enabled.
func NATS(tb testing.TB, ctx context.Context) string {
	tb.Helper()

	c := start(tb, ctx, testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		Cmd:          []string{"-js"},
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
	})

	return "nats://" + mustEndpoint(tb, ctx, c, "4222/tcp")
}
