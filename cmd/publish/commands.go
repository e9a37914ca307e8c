package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildpublish"
	"github.com/k11v/brickview/internal/buildrun"
	"github.com/k11v/brickview/internal/buildrun/buildrundocker"
	"github.com/k11v/brickview/internal/buildrun/buildrunexec"
)

type RunCmd struct {
	Dir     string   `short:"C" type:"existingdir" default:"." help:"Directory holding the sources."`
	Output  string   `short:"o" default:"main.pdf" help:"Artifact path relative to the directory."`
	Image   string   `env:"BRICKVIEW_RUN_IMAGE" help:"Run the command in a container of this image instead of locally."`
	ID      string   `help:"Build ID, a new UUID by default."`
	Command []string `arg:"" passthrough:"" help:"Build command, e.g. -- latexmk -pdf main.tex."`
}

func (r *RunCmd) Run(ctx context.Context, cli *CLI) error {
	publisher, closePublisher, err := cli.publisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	store, closeStore, err := cli.store()
	if err != nil {
		return err
	}
	defer closeStore()

	var runner buildrun.Runner = buildrunexec.New()
	if r.Image != "" {
		dockerRunner, err := buildrundocker.New(r.Image, slog.Default())
		if err != nil {
			return err
		}
		defer dockerRunner.Close()
		runner = dockerRunner
	}

	b, err := buildpublish.Run(ctx, &buildpublish.RunParams{
		Publisher: publisher,
		Store:     store,
		Runner:    runner,
		Logger:    slog.Default(),
		Dir:       r.Dir,
		Command:   r.Command,
		Output:    r.Output,
		ID:        r.ID,
	})
	if err != nil {
		return err
	}

	fmt.Println(b.ID)
	if b.Failed() {
		return fmt.Errorf("build %s failed: %s", b.ID, b.Result.Error)
	}
	return nil
}

type StartCmd struct {
	ID string `help:"Build ID, a new UUID by default."`
}

func (s *StartCmd) Run(ctx context.Context, cli *CLI) error {
	publisher, closePublisher, err := cli.publisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err = publisher.Start(ctx, id, time.Now()); err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

type FinishCmd struct {
	ID         string `arg:"" help:"Build ID."`
	Artifact   string `type:"existingfile" xor:"outcome" required:"" help:"PDF produced by a successful build."`
	Error      string `xor:"outcome" required:"" help:"Error message of a failed build."`
	StdoutFile string `type:"existingfile" help:"File holding the build's standard output."`
	StderrFile string `type:"existingfile" help:"File holding the build's standard error."`
}

func (f *FinishCmd) Run(ctx context.Context, cli *CLI) error {
	publisher, closePublisher, err := cli.publisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	result := &build.Result{Error: f.Error}
	if result.Stdout, err = readOptional(f.StdoutFile); err != nil {
		return err
	}
	if result.Stderr, err = readOptional(f.StderrFile); err != nil {
		return err
	}

	if f.Artifact != "" {
		store, closeStore, err := cli.store()
		if err != nil {
			return err
		}
		defer closeStore()

		artifact, err := os.Open(f.Artifact)
		if err != nil {
			return err
		}
		defer artifact.Close()

		result.OK = true
		result.ArtifactRef, err = store.Put(ctx, f.ID+".pdf", artifact)
		if err != nil {
			return err
		}
	}
	result.FinishTime = time.Now()

	err = publisher.Finish(ctx, f.ID, result)
	if errors.Is(err, buildpublish.ErrUnknownBuild) {
		return fmt.Errorf("%w, start it first", err)
	}
	return err
}

func readOptional(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
