// Package sqlite provides the default file-backed record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

const memoryPath = ":memory:"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls how the database is opened.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path          string
	Table         string
	UniqueRecords bool
	BusyTimeoutMS int
}

// Store persists records in SQLite.
type Store struct {
	db     *sql.DB
	table  string
	unique bool
}

// Open opens (creating if needed) the database, applies pragmas and migrates
// the schema. Any failure here is fatal to startup.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = "repacks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 10_000
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db, table: table, unique: cfg.UniqueRecords}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the records table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	repacker   TEXT NOT NULL,
	link       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_name_idx ON %s (name)`, s.table, s.table),
	}
	if s.unique {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s_record_uniq ON %s (name, repacker, link)`, s.table, s.table))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// Insert appends a record, or does nothing for a duplicate in unique mode.
func (s *Store) Insert(ctx context.Context, record crawler.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, repacker, link) VALUES (?, ?, ?)`, s.table)
	if s.unique {
		query += ` ON CONFLICT DO NOTHING`
	}
	if _, err := s.db.ExecContext(ctx, query, record.Name, record.Repacker, record.Link); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// FindByNameContains returns records whose name contains q, case-sensitively,
// in insertion order.
func (s *Store) FindByNameContains(ctx context.Context, q string) ([]crawler.Record, error) {
	query := fmt.Sprintf(`SELECT name, repacker, link FROM %s WHERE instr(name, ?) > 0 ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, query, q)
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

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
