package buildsourcefile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildsource"
)

const DefaultDebounce = 200 * time.Millisecond

var _ buildsource.Source = (*Source)(nil)

// Source reads a builds document from a file and rereads it when it changes.
type Source struct {
	path     string // required
	debounce time.Duration
	log      *slog.Logger
}

func New(path string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		path:     path,
		debounce: DefaultDebounce,
		log:      logger.With("component", "buildsourcefile.Source"),
	}
}

// Watch reads the file once and then after every change to it.
// It watches the directory so that files replaced by rename are picked up.
func (s *Source) Watch(ctx context.Context, h buildsource.Handler) error {
	path, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("buildsourcefile.Source: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("buildsourcefile.Source: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("buildsourcefile.Source: %w", err)
	}

	s.log.Info("starting watching", "path", path)
	s.read(ctx, h, path)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("buildsourcefile.Source: watcher closed")
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			reload = timer.C
		case <-reload:
			reload = nil
			s.read(ctx, h, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("buildsourcefile.Source: watcher closed")
			}
			s.log.Error("didn't watch", "err", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Source) read(ctx context.Context, h buildsource.Handler, path string) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("file doesn't exist yet", "path", path)
		return
	}
	if err != nil {
		h.HandleError(ctx, fmt.Errorf("buildsourcefile.Source: %w", err))
		return
	}

	c, err := build.ParseDocument(data)
	if err != nil {
		h.HandleError(ctx, fmt.Errorf("buildsourcefile.Source: %s: %w", path, err))
		return
	}
	h.HandleCollection(ctx, c)
}
