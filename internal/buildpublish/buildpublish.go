// Package buildpublish records builds where the collection sources read them.
package buildpublish

import (
	"context"
	"errors"
	"time"

	"github.com/k11v/brickview/internal/build"
)

var (
	// ErrUnknownBuild is returned when finishing a build that was never started.
	ErrUnknownBuild = errors.New("unknown build")

	// ErrBuildExists is returned when starting a build twice.
	ErrBuildExists = errors.New("build exists")

	// ErrBuildFinished is returned when finishing a build twice.
	ErrBuildFinished = errors.New("build finished")
)

// Publisher records the lifecycle of a build.
type Publisher interface {
	Start(ctx context.Context, id string, startTime time.Time) error
	Finish(ctx context.Context, id string, result *build.Result) error
}
