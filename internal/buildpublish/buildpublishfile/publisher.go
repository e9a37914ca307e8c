package buildpublishfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildpublish"
)

var _ buildpublish.Publisher = (*Publisher)(nil)

type Params struct {
	Path string // required

	// Notify is called with the whole collection after every write.
	Notify func(ctx context.Context, c build.Collection) error // optional
}

// Publisher keeps builds in a builds document file.
// Writes replace the file atomically, so a watcher never reads a partial document.
// It is safe for concurrent use within one process only.
type Publisher struct {
	path   string
	notify func(ctx context.Context, c build.Collection) error

	mu sync.Mutex
}

func New(params *Params) *Publisher {
	return &Publisher{path: params.Path, notify: params.Notify}
}

// Start implements buildpublish.Publisher.
func (p *Publisher) Start(ctx context.Context, id string, startTime time.Time) error {
	return p.update(ctx, func(c build.Collection) error {
		if _, ok := c[id]; ok {
			return fmt.Errorf("%s: %w", id, buildpublish.ErrBuildExists)
		}
		c[id] = &build.Build{ID: id, StartTime: startTime}
		return nil
	})
}

// Finish implements buildpublish.Publisher.
func (p *Publisher) Finish(ctx context.Context, id string, result *build.Result) error {
	return p.update(ctx, func(c build.Collection) error {
		b, ok := c[id]
		if !ok {
			return fmt.Errorf("%s: %w", id, buildpublish.ErrUnknownBuild)
		}
		if !b.Running() {
			return fmt.Errorf("%s: %w", id, buildpublish.ErrBuildFinished)
		}
		c[id] = &build.Build{ID: b.ID, StartTime: b.StartTime, Result: result}
		return nil
	})
}

func (p *Publisher) update(ctx context.Context, f func(c build.Collection) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.read()
	if err != nil {
		return fmt.Errorf("buildpublishfile.Publisher: %w", err)
	}
	if err = f(c); err != nil {
		return fmt.Errorf("buildpublishfile.Publisher: %w", err)
	}
	if err = p.write(c); err != nil {
		return fmt.Errorf("buildpublishfile.Publisher: %w", err)
	}

	if p.notify != nil {
		if err = p.notify(ctx, c); err != nil {
			return fmt.Errorf("buildpublishfile.Publisher: %w", err)
		}
	}
	return nil
}

// read returns an empty collection if the file doesn't exist.
func (p *Publisher) read() (build.Collection, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(build.Collection), nil
	} else if err != nil {
		return nil, err
	}
	return build.ParseDocument(data)
}

func (p *Publisher) write(c build.Collection) error {
	data, err := build.MarshalDocument(c)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), "."+filepath.Base(p.path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), p.path)
}
