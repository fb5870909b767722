// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for records.
type Config struct {
	DSN             string
	Table           string
	UniqueRecords   bool
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// Store writes repack records into Postgres.
type Store struct {
	pool   pool
	table  string
	unique bool
}

// Open connects to Postgres and migrates the records table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, table: table, unique: cfg.UniqueRecords}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
// It does not migrate.
func NewStoreWithPool(p pool, table string, unique bool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name, unique: unique}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "repacks"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Migrate creates the records table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	repacker   TEXT NOT NULL,
	link       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_name_idx ON %s (name)`, s.table, s.table),
	}
	if s.unique {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s_record_uniq ON %s (name, repacker, link)`, s.table, s.table))
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// Insert appends a record, or does nothing for a duplicate in unique mode.
func (s *Store) Insert(ctx context.Context, record crawler.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, repacker, link) VALUES ($1, $2, $3)`, s.table)
	if s.unique {
		query += ` ON CONFLICT DO NOTHING`
	}
	if _, err := s.pool.Exec(ctx, query, record.Name, record.Repacker, record.Link); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// FindByNameContains returns records whose name contains q, case-sensitively,
// in insertion order.
func (s *Store) FindByNameContains(ctx context.Context, q string) ([]crawler.Record, error) {
	query := fmt.Sprintf(`SELECT name, repacker, link FROM %s WHERE strpos(name, $1) > 0 ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query, q)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []crawler.Record{}
	for rows.Next() {
		var r crawler.Record
		if err := rows.Scan(&r.Name, &r.Repacker, &r.Link); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
