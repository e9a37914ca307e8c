package buildpublishpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/buildpublish"
)

var _ buildpublish.Publisher = (*Publisher)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Publisher writes builds to the builds table.
// Build ids must be UUIDs.
type Publisher struct {
	db querier // required
}

func New(db querier) *Publisher {
	return &Publisher{db: db}
}

// Start implements buildpublish.Publisher.
func (p *Publisher) Start(ctx context.Context, id string, startTime time.Time) error {
	buildID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("buildpublishpg.Publisher: %w", err)
	}

	query := `
		INSERT INTO builds (id, start_time, status)
		VALUES ($1, $2, 'running')
		RETURNING id
	`
	args := []any{buildID, startTime}

	rows, _ := p.db.Query(ctx, query, args...)
	_, err = pgx.CollectExactlyOneRow(rows, pgx.RowTo[uuid.UUID])
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("buildpublishpg.Publisher: %s: %w", id, buildpublish.ErrBuildExists)
	} else if err != nil {
		return fmt.Errorf("buildpublishpg.Publisher: %w", err)
	}

	return nil
}

// Finish implements buildpublish.Publisher.
func (p *Publisher) Finish(ctx context.Context, id string, result *build.Result) error {
	buildID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("buildpublishpg.Publisher: %w", err)
	}

	status := "failed"
	var outputFileKey, errorMessage *string
	if result.OK {
		status = "succeeded"
		outputFileKey = &result.ArtifactRef
	} else {
		errorMessage = &result.Error
	}

	query := `
		UPDATE builds
		SET finish_time = $2, status = $3, output_file_key = $4, error = $5, stdout = $6, stderr = $7
		WHERE id = $1 AND status = 'running'
		RETURNING id
	`
	args := []any{buildID, result.FinishTime, status, outputFileKey, errorMessage, result.Stdout, result.Stderr}

	rows, _ := p.db.Query(ctx, query, args...)
	_, err = pgx.CollectExactlyOneRow(rows, pgx.RowTo[uuid.UUID])
	if errors.Is(err, pgx.ErrNoRows) {
		return p.finishConflict(ctx, buildID)
	} else if err != nil {
		return fmt.Errorf("buildpublishpg.Publisher: %w", err)
	}

	return nil
}

// finishConflict explains why a build couldn't be finished.
func (p *Publisher) finishConflict(ctx context.Context, buildID uuid.UUID) error {
	query := `
		SELECT status
		FROM builds
		WHERE id = $1
	`
	args := []any{buildID}

	rows, _ := p.db.Query(ctx, query, args...)
	_, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[string])
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("buildpublishpg.Publisher: %s: %w", buildID, buildpublish.ErrUnknownBuild)
	} else if err != nil {
		return fmt.Errorf("buildpublishpg.Publisher: %w", err)
	}
	return fmt.Errorf("buildpublishpg.Publisher: %s: %w", buildID, buildpublish.ErrBuildFinished)
}
