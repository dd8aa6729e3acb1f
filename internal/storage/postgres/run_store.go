// Package postgres records finished crawl runs and their artifacts in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	RunsTable       string
	ArtifactsTable  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RunStore writes one row per run and one row per artifact.
type RunStore struct {
	pool           pool
	runsTable      string
	artifactsTable string
}

var _ crawler.RunRecorder = (*RunStore)(nil)

// NewRunStore connects to Postgres using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(p, cfg.RunsTable, cfg.ArtifactsTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, runsTable, artifactsTable string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runsTable == "" {
		runsTable = "capture_runs"
	}
	if artifactsTable == "" {
		artifactsTable = "capture_artifacts"
	}
	for _, table := range []string{runsTable, artifactsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &RunStore{pool: p, runsTable: runsTable, artifactsTable: artifactsTable}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run and artifact tables when they are missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id         TEXT PRIMARY KEY,
	job_id         TEXT,
	domain_label   TEXT NOT NULL,
	seed_url       TEXT NOT NULL,
	device         TEXT NOT NULL,
	status         TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	output_dir     TEXT NOT NULL,
	artifact_count INTEGER NOT NULL,
	failures       JSONB NOT NULL DEFAULT '[]',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
)`, s.runsTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT NOT NULL REFERENCES %s (run_id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	path        TEXT NOT NULL,
	url         TEXT NOT NULL,
	device      TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	remote_uri  TEXT NOT NULL DEFAULT '',
	sha256      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
)`, s.artifactsTable, s.runsTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordRun inserts the run and its manifest in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, jobID string, result crawler.CrawlResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if result.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	failures := result.Failures
	if failures == nil {
		failures = []crawler.LinkFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	runQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	job_id,
	domain_label,
	seed_url,
	device,
	status,
	reason,
	output_dir,
	artifact_count,
	failures,
	started_at,
	finished_at
) VALUES (
	$1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.runsTable)
	_, err = tx.Exec(ctx, runQuery,
		result.RunID,
		jobID,
		result.DomainLabel,
		result.SeedURL,
		string(result.Device),
		string(result.Status),
		result.Reason,
		result.OutputDir,
		len(result.Manifest),
		failuresJSON,
		result.StartedAt,
		result.FinishedAt,
	)
	if err != nil {
		return s.rollback(ctx, tx, fmt.Errorf("insert run: %w", err))
	}

	artifactQuery := fmt.Sprintf(`
INSERT INTO %s (run_id, seq, path, url, device, captured_at, remote_uri, sha256)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.artifactsTable)
	for i, artifact := range result.Manifest {
		_, err := tx.Exec(ctx, artifactQuery,
			result.RunID,
			i,
			artifact.Path,
			artifact.URL,
			string(artifact.Device),
			artifact.CapturedAt,
			artifact.RemoteURI,
			artifact.SHA256,
		)
		if err != nil {
			return s.rollback(ctx, tx, fmt.Errorf("insert artifact %d: %w", i, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (s *RunStore) rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
