package buildrundocker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/k11v/brickview/internal/buildrun"
)

var _ buildrun.Runner = (*Runner)(nil)

const workDir = "/user/run"

// Runner runs the command in a throwaway container of image.
// The working directory is bind-mounted, the rest of the filesystem is
// read-only and there is no network.
type Runner struct {
	client *client.Client // required
	image  string         // required
	log    *slog.Logger
}

// New connects to the Docker Engine configured by the environment.
func New(image string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("buildrundocker.New: %w", err)
	}
	return &Runner{
		client: cli,
		image:  image,
		log:    logger.With("component", "buildrundocker.Runner"),
	}, nil
}

func (r *Runner) Close() error {
	return r.client.Close()
}

// Run implements buildrun.Runner.
func (r *Runner) Run(ctx context.Context, params *buildrun.Params) (*buildrun.Output, error) {
	if len(params.Command) == 0 {
		return nil, errors.New("buildrundocker.Runner: empty command")
	}
	dir, err := filepath.Abs(params.Dir)
	if err != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	}

	createResp, err := r.client.ContainerCreate(
		ctx,
		&container.Config{
			Image:        r.image,
			Cmd:          strslice.StrSlice(params.Command),
			WorkingDir:   workDir,
			AttachStdout: true,
			AttachStderr: true,
		},
		hostConfig(dir),
		nil,
		nil,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	}
	defer func() {
		// The run context may be done already.
		removeErr := r.client.ContainerRemove(context.WithoutCancel(ctx), createResp.ID, container.RemoveOptions{Force: true})
		if removeErr != nil {
			r.log.Warn("didn't remove container", "id", createResp.ID, "err", removeErr)
		}
	}()
	if len(createResp.Warnings) > 0 {
		r.log.Warn("created container with warnings", "id", createResp.ID, "warnings", createResp.Warnings)
	}

	err = r.client.ContainerStart(ctx, createResp.ID, container.StartOptions{})
	if err != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	}

	var waitResp container.WaitResponse
	waitRespCh, errCh := r.client.ContainerWait(ctx, createResp.ID, container.WaitConditionNotRunning)
	select {
	case err = <-errCh:
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	case waitResp = <-waitRespCh:
	}
	if waitResp.Error != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %s", waitResp.Error.Message)
	}

	logs, err := r.client.ContainerLogs(ctx, createResp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err = stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("buildrundocker.Runner: %w", err)
	}

	return &buildrun.Output{
		ExitCode: int(waitResp.StatusCode),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func hostConfig(dir string) *container.HostConfig {
	return &container.HostConfig{
		NetworkMode: "none",
		CapDrop:     strslice.StrSlice{"ALL"},
		CapAdd: strslice.StrSlice{ // https://github.com/moby/moby/blob/master/oci/caps/defaults.go#L6-L19
			"CAP_CHOWN",
			"CAP_DAC_OVERRIDE",
			"CAP_FSETID",
			"CAP_FOWNER",
			"CAP_SETGID",
			"CAP_SETUID",
			"CAP_KILL",
		},
		ReadonlyRootfs: true,
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: dir,
				Target: workDir,
			},
			{
				Type:   mount.TypeTmpfs,
				Target: "/tmp",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: 256 * 1024 * 1024, // 256MB
					Mode:      0o1777,
				},
			},
		},
	}
}
