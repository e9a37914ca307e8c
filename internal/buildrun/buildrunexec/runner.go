package buildrunexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/k11v/brickview/internal/buildrun"
)

var _ buildrun.Runner = (*Runner)(nil)

// Runner runs the command as a local process.
type Runner struct{}

func New() *Runner {
	return &Runner{}
}

// Run implements buildrun.Runner.
func (*Runner) Run(ctx context.Context, params *buildrun.Params) (*buildrun.Output, error) {
	if len(params.Command) == 0 {
		return nil, errors.New("buildrunexec.Runner: empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, params.Command[0], params.Command[1:]...)
	cmd.Dir = params.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) && ctx.Err() == nil {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("buildrunexec.Runner: %w", err)
	}

	return &buildrun.Output{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
