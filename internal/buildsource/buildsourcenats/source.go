package buildsourcenats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildsource"
)

var _ buildsource.Source = (*Source)(nil)

// Source mirrors a key-value bucket holding one build per key.
// The key is the build id and the value is the build in the builds
// document shape.
type Source struct {
	kv  jetstream.KeyValue // required
	log *slog.Logger
}

func New(kv jetstream.KeyValue, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{kv: kv, log: logger.With("component", "buildsourcenats.Source")}
}

// Watch delivers the collection once the bucket's current values are
// known and again after every change.
func (s *Source) Watch(ctx context.Context, h buildsource.Handler) error {
	w, err := s.kv.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("buildsourcenats.Source: %w", err)
	}
	defer func() {
		_ = w.Stop()
	}()

	s.log.Info("starting watching", "bucket", s.kv.Bucket())
	m := newMirror()
	for {
		select {
		case entry, ok := <-w.Updates():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("buildsourcenats.Source: watcher stopped")
			}
			m.apply(ctx, h, entry)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mirror rebuilds the collection from bucket entries.
type mirror struct {
	collection  build.Collection
	initialized bool
	initialErr  error // first malformed entry among the initial values
}

func newMirror() *mirror {
	return &mirror{collection: make(build.Collection)}
}

// apply updates the collection with entry and reports the result to h.
// A nil entry marks the end of the initial values.
// Nothing is reported before that.
// Malformed entries are skipped and the previous value of the key is kept.
func (m *mirror) apply(ctx context.Context, h buildsource.Handler, entry jetstream.KeyValueEntry) {
	if entry == nil {
		m.initialized = true
		h.HandleCollection(ctx, m.collection.Clone())
		if m.initialErr != nil {
			h.HandleError(ctx, m.initialErr)
			m.initialErr = nil
		}
		return
	}

	key := entry.Key()
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		delete(m.collection, key)
	default:
		b, err := build.ParseBuild(entry.Value())
		if err == nil && b.ID != key {
			err = fmt.Errorf("%w: id is %q", build.ErrMalformedCollection, b.ID)
		}
		if err != nil {
			err = fmt.Errorf("buildsourcenats.Source: key %s: %w", key, err)
			if m.initialized {
				h.HandleError(ctx, err)
			} else if m.initialErr == nil {
				m.initialErr = err
			}
			return
		}
		m.collection[key] = b
	}

	if m.initialized {
		h.HandleCollection(ctx, m.collection.Clone())
	}
}
