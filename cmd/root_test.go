package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/aggregator"
	"github.com/JakeFAU/repack-aggregator/internal/config"
	"github.com/JakeFAU/repack-aggregator/internal/metrics"
	"github.com/JakeFAU/repack-aggregator/internal/provider"
	"github.com/JakeFAU/repack-aggregator/internal/scheduler"
)

type fakeApp struct {
	summary  aggregator.Summary
	crawlErr error
	runErr   error
	ran      bool
	crawled  bool
	closed   bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func (f *fakeApp) Crawl(context.Context) (aggregator.Summary, error) {
	f.crawled = true
	return f.summary, f.crawlErr
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close() error {
	f.closed = true
	return nil
}

func useFakeApp(t *testing.T, app *fakeApp) *config.Config {
	t.Helper()
	var got config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		got = cfg
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsSummary(t *testing.T) {
	app := &fakeApp{summary: aggregator.Summary{Reports: []aggregator.Report{
		{
			Provider:  provider.KindFitGirl,
			Status:    metrics.StatusSuccess,
			Pages:     scheduler.Snapshot{Processed: 12, Failed: 1},
			Entries:   40,
			Persisted: 40,
			Duration:  1500 * time.Millisecond,
		},
		{
			Provider: provider.KindOnlineFix,
			Status:   metrics.StatusSkipped,
			Err:      provider.ErrMissingCredentials,
		},
	}}}
	useFakeApp(t, app)

	out, err := execute(t, "crawl")
	require.NoError(t, err)
	require.True(t, app.crawled)
	require.True(t, app.closed)
	require.Contains(t, out, "PROVIDER")
	require.Regexp(t, `fitgirl\s+success\s+12\s+1\s+40\s+40\s+1\.5s`, out)
	require.Contains(t, out, "provider credentials not configured")
}

func TestCrawlCommandPropagatesFailure(t *testing.T) {
	app := &fakeApp{crawlErr: errors.New("store exploded")}
	useFakeApp(t, app)

	_, err := execute(t, "crawl")
	require.ErrorContains(t, err, "store exploded")
}

func TestCrawlCommandToleratesCancellation(t *testing.T) {
	app := &fakeApp{crawlErr: context.Canceled}
	useFakeApp(t, app)

	_, err := execute(t, "crawl")
	require.NoError(t, err)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.True(t, app.closed)
}

func TestConfigFlagIsLoaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9191
crawler:
  providers: [gog]
storage:
  driver: memory
`), 0o600))

	app := &fakeApp{}
	got := useFakeApp(t, app)

	_, err := execute(t, "--config", path, "serve")
	require.NoError(t, err)
	require.Equal(t, 9191, got.Server.Port)
	require.Equal(t, []string{"gog"}, got.Crawler.Providers)
	require.Equal(t, "memory", got.Storage.Driver)
}

func TestInvalidConfigStopsBeforeBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  providers: [nope]\n"), 0o600))

	built := false
	orig := newApp
	newApp = func(context.Context, config.Config) (App, error) {
		built = true
		return &fakeApp{}, nil
	}
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "--config", path, "crawl")
	require.ErrorContains(t, err, "load config")
	require.False(t, built)
}
