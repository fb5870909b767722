// Package storage opens the configured record store driver.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	"github.com/JakeFAU/repack-aggregator/internal/storage/memory"
	"github.com/JakeFAU/repack-aggregator/internal/storage/postgres"
	"github.com/JakeFAU/repack-aggregator/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures a driver.
type Config struct {
	Driver        string
	Path          string
	DSN           string
	Table         string
	UniqueRecords bool
	MaxConns      int32
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open opens and migrates the configured store.
func Open(ctx context.Context, cfg Config) (crawler.Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:          cfg.Path,
			Table:         cfg.Table,
			UniqueRecords: cfg.UniqueRecords,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			UniqueRecords:   cfg.UniqueRecords,
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case DriverMemory:
		return memory.NewStore(cfg.UniqueRecords), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
