package app

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresPool connects to Postgres and pings it.
func NewPostgresPool(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	pgxConf, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("app.NewPostgresPool: %w", err)
	}
	pgxConf.ConnConfig.RuntimeParams["application_name"] = "brickview"

	pool, err := pgxpool.NewWithConfig(ctx, pgxConf)
	if err != nil {
		return nil, fmt.Errorf("app.NewPostgresPool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app.NewPostgresPool: %w", err)
	}

	return pool, nil
}

// SetupPostgres creates or upgrades the builds table.
func SetupPostgres(connectionString string) error {
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return fmt.Errorf("app.SetupPostgres: %w", err)
	}
	defer db.Close()

	if err = migratePostgresDB(db); err != nil {
		return fmt.Errorf("app.SetupPostgres: %w", err)
	}
	return nil
}

//go:embed migrations/*.sql
var postgresMigrations embed.FS

func postgresMigrationsFS() fs.FS {
	sub, err := fs.Sub(postgresMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func migratePostgresDB(db *sql.DB) error {
	sourceDriver, err := iofs.New(postgresMigrationsFS(), ".")
	if err != nil {
		return err
	}

	databaseDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "brickview_migrations"})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", databaseDriver)
	if err != nil {
		return err
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
