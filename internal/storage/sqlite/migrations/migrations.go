package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/preload/internal/log"
)

// MigrationsTable is where the applied schema version is tracked.
const MigrationsTable = "preload_schema_migrations"

//go:embed sql/*.sql
var sqlFiles embed.FS

// Migrator applies the run history schema.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator returns a migrator for the run history database.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "sqlite.Migrator"}),
	}, nil
}

// Up applies every pending migration and returns the resulting schema version.
func (m *Migrator) Up(ctx context.Context) (uint, error) {
	var version uint
	err := m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not apply migrations: %w", err)
		}

		v, err := currentVersion(mg)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Debugf("Run history schema at version %d", version)
	return version, nil
}

// Down reverts the whole schema, every recorded run is lost.
func (m *Migrator) Down(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not revert migrations: %w", err)
		}
		m.logger.Warningf("Run history schema reverted")
		return nil
	})
}

// Version returns the applied schema version, 0 when nothing is applied.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	var version uint
	err := m.with(ctx, func(mg *migrate.Migrate) error {
		v, err := currentVersion(mg)
		version = v
		return err
	})
	return version, err
}

// with runs fn with a migrate instance over the embedded SQL files. The database
// is not closed afterwards, it's owned by the caller.
func (m *Migrator) with(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not read embedded migrations: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("Could not close embedded migrations: %s", err)
		}
	}()

	mg, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return fn(mg)
}

func currentVersion(mg *migrate.Migrate) (uint, error) {
	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}
