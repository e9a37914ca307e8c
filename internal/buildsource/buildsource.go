// Package buildsource defines how build collections reach the viewer.
//
// A Source delivers whole collections, pushed or polled. Subpackages
// implement it for Postgres, AMQP, NATS key-value buckets and local files.
package buildsource

import (
	"context"

	"github.com/k11v/brickview/internal/build"
)

// Handler receives what a Source observes.
// Calls for one Source are never concurrent.
type Handler interface {
	// HandleCollection receives the complete collection.
	// The handler may keep c, the source won't modify it afterwards.
	HandleCollection(ctx context.Context, c build.Collection)

	// HandleError receives errors that leave the collection unknown,
	// such as a malformed document or a lost connection.
	HandleError(ctx context.Context, err error)
}

// Source watches a build collection.
type Source interface {
	// Watch blocks until ctx is done or the source fails for good.
	Watch(ctx context.Context, h Handler) error
}
