package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSBucketBuilds is the default key-value bucket holding one build per key.
const NATSBucketBuilds = "builds"

// NewNATSKeyValue connects to NATS and opens the bucket, creating it if needed.
// Closing the returned connection releases everything.
func NewNATSKeyValue(ctx context.Context, url string, bucket string) (*nats.Conn, jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = NATSBucketBuilds
	}

	conn, err := nats.Connect(url, nats.Name("brickview"))
	if err != nil {
		return nil, nil, fmt.Errorf("app.NewNATSKeyValue: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("app.NewNATSKeyValue: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Builds observed by brickview, keyed by build id",
			History:     1,
		})
	}
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("app.NewNATSKeyValue: %w", err)
	}

	return conn, kv, nil
}
