package buildpublishnats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildpublish"
)

var _ buildpublish.Publisher = (*Publisher)(nil)

// Publisher writes builds to a key-value bucket, one build per key.
type Publisher struct {
	kv jetstream.KeyValue // required
}

func New(kv jetstream.KeyValue) *Publisher {
	return &Publisher{kv: kv}
}

// Start implements buildpublish.Publisher.
func (p *Publisher) Start(ctx context.Context, id string, startTime time.Time) error {
	data, err := build.MarshalBuild(&build.Build{ID: id, StartTime: startTime})
	if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}

	_, err = p.kv.Create(ctx, id, data)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return fmt.Errorf("buildpublishnats.Publisher: %s: %w", id, buildpublish.ErrBuildExists)
	} else if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}

	return nil
}

// Finish implements buildpublish.Publisher.
// The update is conditional on the revision read, so concurrent finishes
// of the same build can't both succeed.
func (p *Publisher) Finish(ctx context.Context, id string, result *build.Result) error {
	entry, err := p.kv.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("buildpublishnats.Publisher: %s: %w", id, buildpublish.ErrUnknownBuild)
	} else if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}

	b, err := build.ParseBuild(entry.Value())
	if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}
	if !b.Running() {
		return fmt.Errorf("buildpublishnats.Publisher: %s: %w", id, buildpublish.ErrBuildFinished)
	}
	b.Result = result

	data, err := build.MarshalBuild(b)
	if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}

	_, err = p.kv.Update(ctx, id, data, entry.Revision())
	if err != nil {
		return fmt.Errorf("buildpublishnats.Publisher: %w", err)
	}

	return nil
}
