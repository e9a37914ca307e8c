package buildpublish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildrun"
)

// ArtifactStore keeps artifacts where a content store can fetch them.
type ArtifactStore interface {
	Put(ctx context.Context, ref string, r io.Reader) (string, error)
}

type RunParams struct {
	Publisher Publisher       // required
	Store     ArtifactStore   // required
	Runner    buildrun.Runner // required
	Logger    *slog.Logger    // optional

	Dir     string   // required
	Command []string // required
	Output  string   // required, artifact path relative to Dir

	ID  string           // optional, a new UUID by default
	Now func() time.Time // optional
}

// Run records a build, runs it and records its outcome.
// A command that fails or leaves no artifact gives a failed build, not an error.
// Errors are returned when the outcome can't be recorded.
func Run(ctx context.Context, params *RunParams) (*build.Build, error) {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := params.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("build_id", id)

	b := &build.Build{ID: id, StartTime: now()}
	if err := params.Publisher.Start(ctx, b.ID, b.StartTime); err != nil {
		return nil, fmt.Errorf("buildpublish.Run: %w", err)
	}
	log.Info("started build")

	result, err := runBuild(ctx, params, b.ID)
	if err != nil {
		// Record the failure even if ctx is done, so the build doesn't stay running.
		ctx = context.WithoutCancel(ctx)
		result = &build.Result{Error: err.Error()}
	}
	result.FinishTime = now()

	if err = params.Publisher.Finish(ctx, b.ID, result); err != nil {
		return nil, fmt.Errorf("buildpublish.Run: %w", err)
	}
	b.Result = result

	if result.OK {
		log.Info("finished build", "artifact", result.ArtifactRef)
	} else {
		log.Info("failed build", "error", result.Error)
	}
	return b, nil
}

// runBuild returns an error when the build couldn't run at all.
func runBuild(ctx context.Context, params *RunParams, id string) (*build.Result, error) {
	out, err := params.Runner.Run(ctx, &buildrun.Params{Dir: params.Dir, Command: params.Command})
	if err != nil {
		return nil, err
	}
	result := &build.Result{Stdout: out.Stdout, Stderr: out.Stderr}
	if out.ExitCode != 0 {
		result.Error = fmt.Sprintf("exit status %d", out.ExitCode)
		return result, nil
	}

	f, err := os.Open(filepath.Join(params.Dir, params.Output))
	if errors.Is(err, fs.ErrNotExist) {
		result.Error = fmt.Sprintf("no output file %s", params.Output)
		return result, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	ref, err := params.Store.Put(ctx, id+".pdf", f)
	if err != nil {
		return nil, err
	}
	result.OK = true
	result.ArtifactRef = ref
	return result, nil
}
