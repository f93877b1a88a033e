package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.RunRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository, the schema is migrated on creation.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	version, err := migrator.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema v%d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateRun stores a run with all its outcomes.
func (r *Repository) CreateRun(ctx context.Context, run model.Run) (err error) {
	if run.ID == "" {
		return fmt.Errorf("run id is required: %w", model.ErrNotValid)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var finishedAt *int64
	if !run.FinishedAt.IsZero() {
		u := run.FinishedAt.UnixNano()
		finishedAt = &u
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, manifest_name,
			started_at, finished_at,
			total, completed,
			forced, cancelled
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ManifestName,
		run.StartedAt.UnixNano(),
		finishedAt,
		run.Total,
		run.Completed,
		run.Forced,
		run.Cancelled,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.") {
			return fmt.Errorf("run %s: %w", run.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_outcomes (
			run_id, position,
			kind, source, font_family,
			succeeded, timed_out, err,
			elapsed_ns, bytes
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range run.Outcomes {
		_, err = stmt.ExecContext(
			ctx,
			run.ID,
			i,
			o.Descriptor.Kind,
			o.Descriptor.Source,
			o.Descriptor.FontFamily,
			o.Succeeded,
			o.TimedOut,
			o.Err,
			o.Elapsed.Nanoseconds(),
			o.Bytes,
		)
		if err != nil {
			return fmt.Errorf("could not insert outcome %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit run: %w", err)
	}

	r.logger.Debugf("Created run in repository: %s", run.ID)
	return nil
}

const selectRuns = `
	SELECT
		id, manifest_name,
		started_at, finished_at,
		total, completed,
		forced, cancelled
	FROM runs
`

// GetRun retrieves a run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query run: %w", err)
	}

	outcomes, err := r.outcomes(ctx, `WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes[id]

	return &run, nil
}

// ListRuns returns all runs, newest first.
func (r *Repository) ListRuns(ctx context.Context) ([]model.Run, error) {
	rows, err := r.db.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	outcomes, err := r.outcomes(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].Outcomes = outcomes[runs[i].ID]
	}

	return runs, nil
}

// outcomes returns the outcomes matching the where clause grouped by run, in manifest order.
func (r *Repository) outcomes(ctx context.Context, where string, args ...any) (map[string][]model.LoadOutcome, error) {
	query := `
		SELECT
			run_id,
			kind, source, font_family,
			succeeded, timed_out, err,
			elapsed_ns, bytes
		FROM run_outcomes
	` + where + ` ORDER BY run_id, position`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := map[string][]model.LoadOutcome{}
	for rows.Next() {
		var (
			runID     string
			kind      string
			o         model.LoadOutcome
			elapsedNs int64
		)
		err := rows.Scan(
			&runID,
			&kind,
			&o.Descriptor.Source,
			&o.Descriptor.FontFamily,
			&o.Succeeded,
			&o.TimedOut,
			&o.Err,
			&elapsedNs,
			&o.Bytes,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan outcome: %w", err)
		}
		o.Descriptor.Kind = model.AssetKind(kind)
		o.Elapsed = time.Duration(elapsedNs)
		outcomes[runID] = append(outcomes[runID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}

	return outcomes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.Run, error) {
	var (
		run                   model.Run
		startedAt, finishedAt sql.NullInt64
	)

	err := s.Scan(
		&run.ID,
		&run.ManifestName,
		&startedAt,
		&finishedAt,
		&run.Total,
		&run.Completed,
		&run.Forced,
		&run.Cancelled,
	)
	if err != nil {
		return model.Run{}, err
	}

	if !startedAt.Valid {
		return model.Run{}, fmt.Errorf("started_at is required")
	}
	run.StartedAt = timeFromUnixNano(startedAt.Int64)
	if finishedAt.Valid {
		run.FinishedAt = timeFromUnixNano(finishedAt.Int64)
	}

	return run, nil
}

func timeFromUnixNano(ns int64) time.Time { return time.Unix(0, ns).UTC() }
