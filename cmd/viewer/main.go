// Command viewer serves a live view of the latest successful document build.
//
//	@title			Brickview API
//	@version		1.0
//	@description	Live viewer for the latest successful document build.
//	@BasePath		/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/k11v/brickview/internal/app"
	"github.com/k11v/brickview/internal/app/apps3"
	"github.com/k11v/brickview/internal/buildsource"
	"github.com/k11v/brickview/internal/buildsource/buildsourceamqp"
	"github.com/k11v/brickview/internal/buildsource/buildsourcefile"
	"github.com/k11v/brickview/internal/buildsource/buildsourcenats"
	"github.com/k11v/brickview/internal/buildsource/buildsourcepg"
	"github.com/k11v/brickview/internal/content/contentfile"
	"github.com/k11v/brickview/internal/content/contents3"
	"github.com/k11v/brickview/internal/metrics"
	"github.com/k11v/brickview/internal/pdf"
	"github.com/k11v/brickview/internal/render"
	"github.com/k11v/brickview/internal/server"
	"github.com/k11v/brickview/internal/viewer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	run := func() int {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := parseConfig(os.Environ(), ".env")
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		log := newLogger(os.Stderr, cfg.Development)
		slog.SetDefault(log)

		if err = runViewer(ctx, cfg, log); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		return 0
	}
	os.Exit(run())
}

func newLogger(w io.Writer, development bool) *slog.Logger {
	if development {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

func runViewer(ctx context.Context, cfg *config, log *slog.Logger) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, closeStore, err := newContentStore(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	source, closeSource, err := newSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeSource)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	doc := pdf.New()
	v := viewer.New(&viewer.Params{
		Store:       store,
		Loader:      doc,
		Renderer:    doc,
		Recorder:    metrics.NewPrometheusRecorder(reg),
		Logger:      log,
		Width:       cfg.Render.Width,
		Concurrency: cfg.Render.Concurrency,
	})
	srv := server.New(&cfg.Server, log, v, reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.Run(gctx)
	})
	g.Go(func() error {
		return source.Watch(gctx, v)
	})
	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr, "source", cfg.source(), "content", cfg.content())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}

func newContentStore(cfg *config) (render.ContentStore, func(), error) {
	switch cfg.content() {
	case contentS3:
		client, err := apps3.NewClient(cfg.S3.URL)
		if err != nil {
			return nil, nil, err
		}
		bucket := cfg.S3.Bucket
		if bucket == "" {
			bucket = apps3.DefaultBucketName
		}
		return contents3.New(client, bucket), func() {}, nil
	case contentFile:
		store, err := contentfile.New(cfg.File.ArtifactsDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown content store %q", cfg.content())
	}
}

func newSource(ctx context.Context, cfg *config, log *slog.Logger) (buildsource.Source, func(), error) {
	switch cfg.source() {
	case sourcePostgres:
		db, err := app.NewPostgresPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return buildsourcepg.New(db, cfg.Postgres.PollInterval, log), db.Close, nil
	case sourceAMQP:
		return buildsourceamqp.New(cfg.AMQP.URL, cfg.AMQP.Queue, log), func() {}, nil
	case sourceNATS:
		conn, kv, err := app.NewNATSKeyValue(ctx, cfg.NATS.URL, cfg.NATS.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return buildsourcenats.New(kv, log), conn.Close, nil
	case sourceFile:
		return buildsourcefile.New(cfg.File.BuildsPath, log), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown build source %q", cfg.source())
	}
}
