package buildsourcepg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildsource"
)

const DefaultPollInterval = 2 * time.Second

var _ buildsource.Source = (*Source)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source polls the builds table.
type Source struct {
	db       querier       // required
	interval time.Duration // required
	log      *slog.Logger
}

func New(db querier, interval time.Duration, logger *slog.Logger) *Source {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		db:       db,
		interval: interval,
		log:      logger.With("component", "buildsourcepg.Source"),
	}
}

// Watch polls right away and then every interval.
// A poll that overruns the interval delays the next one.
func (s *Source) Watch(ctx context.Context, h buildsource.Handler) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("buildsourcepg.Source: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.poll(ctx, h) }),
		gocron.WithName("poll-builds"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("buildsourcepg.Source: %w", err)
	}

	s.log.Info("starting polling", "interval", s.interval)
	scheduler.Start()

	<-ctx.Done()
	if err = scheduler.Shutdown(); err != nil {
		s.log.Error("didn't stop scheduler", "err", err)
	}
	return ctx.Err()
}

func (s *Source) poll(ctx context.Context, h buildsource.Handler) {
	c, err := s.Collection(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.HandleError(ctx, err)
		return
	}
	h.HandleCollection(ctx, c)
}

// Collection reads every build.
// A table that doesn't look like the builds table is reported with
// build.ErrMalformedCollection.
func (s *Source) Collection(ctx context.Context) (build.Collection, error) {
	query := `
		SELECT id, start_time, finish_time, status, output_file_key, error, stdout, stderr
		FROM builds
	`

	rows, _ := s.db.Query(ctx, query)
	builds, err := pgx.CollectRows(rows, rowToBuild)
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && isSchemaError(pgErr.Code) {
		return nil, fmt.Errorf("buildsourcepg.Source: %w: %w", build.ErrMalformedCollection, err)
	} else if err != nil {
		return nil, fmt.Errorf("buildsourcepg.Source: %w", err)
	}

	c := make(build.Collection, len(builds))
	for _, b := range builds {
		c[b.ID] = b
	}
	return c, nil
}

func isSchemaError(code string) bool {
	switch code {
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn, pgerrcode.DatatypeMismatch:
		return true
	default:
		return false
	}
}

const (
	statusRunning   = "running"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

type row struct {
	ID            uuid.UUID  `db:"id"`
	StartTime     time.Time  `db:"start_time"`
	FinishTime    *time.Time `db:"finish_time"`
	Status        string     `db:"status"`
	OutputFileKey *string    `db:"output_file_key"`
	Error         *string    `db:"error"`
	Stdout        string     `db:"stdout"`
	Stderr        string     `db:"stderr"`
}

func rowToBuild(collectableRow pgx.CollectableRow) (*build.Build, error) {
	r, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to build: %w", err)
	}
	return r.build()
}

func (r *row) build() (*build.Build, error) {
	b := &build.Build{ID: r.ID.String(), StartTime: r.StartTime}

	switch r.Status {
	case statusRunning:
		return b, nil
	case statusSucceeded, statusFailed:
	default:
		return nil, fmt.Errorf("%w: build %s: unknown status %q", build.ErrMalformedCollection, b.ID, r.Status)
	}

	if r.FinishTime == nil {
		return nil, fmt.Errorf("%w: build %s: %s without finish_time", build.ErrMalformedCollection, b.ID, r.Status)
	}
	b.Result = &build.Result{
		OK:         r.Status == statusSucceeded,
		FinishTime: *r.FinishTime,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
	}

	if b.Result.OK {
		if r.OutputFileKey == nil || *r.OutputFileKey == "" {
			return nil, fmt.Errorf("%w: build %s: succeeded without output_file_key", build.ErrMalformedCollection, b.ID)
		}
		b.Result.ArtifactRef = *r.OutputFileKey
	} else if r.Error != nil {
		b.Result.Error = *r.Error
	}
	return b, nil
}
