// Package postgres persists extraction run history in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/contactfinder/internal/email"
	"github.com/JakeFAU/contactfinder/internal/extractor"
)

const defaultTable = "extraction_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotConfigured is returned by a nil or closed store.
var ErrNotConfigured = errors.New("run store is not configured")

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Run is one persisted extraction.
type Run struct {
	ID          uuid.UUID
	URL         string
	Mode        extractor.Mode
	Emails      []email.Entry
	Diagnostics []extractor.Diagnostic
	CreatedAt   time.Time
}

// RunFromResult snapshots res. ID and CreatedAt are assigned on save.
func RunFromResult(res *extractor.Result) Run {
	return Run{
		URL:         res.URL(),
		Mode:        res.Mode(),
		Emails:      res.Emails(),
		Diagnostics: res.Diagnostics(),
	}
}

// RunStore writes extraction runs into Postgres.
type RunStore struct {
	pool  execCloser
	table string
	now   func() time.Time
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table, now: time.Now}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table, now: time.Now}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          uuid PRIMARY KEY,
	url         text NOT NULL,
	mode        text NOT NULL,
	emails      jsonb NOT NULL,
	diagnostics jsonb NOT NULL,
	created_at  timestamptz NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// SaveRun inserts run and returns its id. A zero ID gets a UUIDv7 and a zero
// CreatedAt gets the current time.
func (s *RunStore) SaveRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return uuid.Nil, ErrNotConfigured
	}
	if run.URL == "" {
		return uuid.Nil, fmt.Errorf("run url is required")
	}
	if run.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generate run id: %w", err)
		}
		run.ID = id
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	emailsJSON, err := marshalList(run.Emails)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal emails: %w", err)
	}
	diagnosticsJSON, err := marshalList(run.Diagnostics)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal diagnostics: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	mode,
	emails,
	diagnostics,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.table)

	args := []any{
		run.ID,
		run.URL,
		string(run.Mode),
		emailsJSON,
		diagnosticsJSON,
		run.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
