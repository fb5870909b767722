package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	"github.com/JakeFAU/repack-aggregator/internal/storage/memory"
	"github.com/JakeFAU/repack-aggregator/internal/storage/sqlite"
)

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, mem)
	require.NoError(t, mem.Close())

	lite, err := Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	require.IsType(t, &sqlite.Store{}, lite)
	_, isPinger := lite.(Pinger)
	require.True(t, isPinger)
	require.NoError(t, lite.Insert(ctx, crawler.Record{Name: "Doom", Repacker: "GOG", Link: "l"}))
	require.NoError(t, lite.Close())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "mongo"})
	require.ErrorContains(t, err, `unknown storage driver "mongo"`)

	_, err = Open(context.Background(), Config{Driver: DriverPostgres})
	require.ErrorContains(t, err, "storage.dsn is required")

	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	require.ErrorContains(t, err, "storage.path is required")
}
