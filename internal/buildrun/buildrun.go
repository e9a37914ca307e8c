// Package buildrun runs the external build command.
package buildrun

import "context"

type Params struct {
	Dir     string   // required, working directory holding the sources
	Command []string // required
}

// Output is what a finished command left behind.
// A non-zero exit code is not an error.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type Runner interface {
	Run(ctx context.Context, params *Params) (*Output, error)
}
