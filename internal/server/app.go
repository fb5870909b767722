// Package server builds the long-lived application services and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/aggregator"
	"github.com/JakeFAU/repack-aggregator/internal/api"
	"github.com/JakeFAU/repack-aggregator/internal/apikey"
	"github.com/JakeFAU/repack-aggregator/internal/config"
	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	collyfetcher "github.com/JakeFAU/repack-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/repack-aggregator/internal/games"
	"github.com/JakeFAU/repack-aggregator/internal/logging"
	"github.com/JakeFAU/repack-aggregator/internal/metrics"
	"github.com/JakeFAU/repack-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/repack-aggregator/internal/provider"
	"github.com/JakeFAU/repack-aggregator/internal/search"
	"github.com/JakeFAU/repack-aggregator/internal/storage"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      crawler.Store
	aggregator *aggregator.Aggregator
	rotator    *apikey.Rotator
	apiServer  *api.Server
}

// Build creates the logger and every service described by cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return NewApp(ctx, cfg, logger)
}

// NewApp wires services around an existing logger.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := provider.ValidateRegistry(); err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	metrics.Init()

	store, err := storage.Open(ctx, storage.Config{
		Driver:        cfg.Storage.Driver,
		Path:          cfg.Storage.Path,
		DSN:           cfg.Storage.DSN,
		Table:         cfg.Storage.Table,
		UniqueRecords: cfg.Storage.UniqueRecords,
		MaxConns:      cfg.Storage.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("record store opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("unique_records", cfg.Storage.UniqueRecords),
	)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	fetcherCfg := collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
		Wrap:      limiter.Transport,
	}

	providers, err := providerConfigs(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	agg := aggregator.New(aggregator.Config{
		Providers:      providers,
		QueueDepth:     cfg.Crawler.QueueDepth,
		PersistWorkers: cfg.Crawler.PersistWorkers,
		MinBodyBytes:   cfg.Crawler.MinBodyBytes,
	}, collyfetcher.Factory(fetcherCfg), store, logger.Named("aggregator"))

	shared := collyfetcher.New(fetcherCfg)
	rotator := apikey.NewRotator(
		apikey.NewPageSource(shared, cfg.Games.KeySourceURL),
		logger.Named("apikey"),
	)
	catalog := games.NewClient(shared, rotator, cfg.Games.APIBaseURL)

	opts := api.Options{RequestTimeout: cfg.HTTPTimeout() * 2}
	if pinger, ok := store.(storage.Pinger); ok {
		opts.Ready = pinger
	}
	apiServer := api.NewServer(search.NewService(store), catalog, opts, logger.Named("api"))

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		aggregator: agg,
		rotator:    rotator,
		apiServer:  apiServer,
	}, nil
}

func providerConfigs(cfg config.Config) ([]aggregator.ProviderConfig, error) {
	kinds, err := cfg.EnabledProviders()
	if err != nil {
		return nil, err
	}
	out := make([]aggregator.ProviderConfig, 0, len(kinds))
	for _, kind := range kinds {
		spec, ok := provider.Lookup(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %s", provider.ErrUnknownKind, kind)
		}
		pc := cfg.Provider(kind)
		out = append(out, aggregator.ProviderConfig{
			Spec:    spec.WithBaseURL(pc.BaseURL),
			Workers: pc.Workers,
			Credentials: provider.Credentials{
				Username: pc.Username,
				Password: pc.Password,
			},
		})
	}
	return out, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Crawl runs one aggregation over every enabled provider.
func (a *App) Crawl(ctx context.Context) (aggregator.Summary, error) {
	summary, err := a.aggregator.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("crawl: %w", err)
	}
	return summary, nil
}

// Run fetches the metadata API key, optionally starts a background crawl, and
// serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.rotator.Init(ctx); err != nil {
		// The key is refreshed lazily on the first rejected call.
		a.logger.Warn("metadata api key unavailable at startup", zap.Error(err))
	}

	crawlDone := make(chan struct{})
	if a.cfg.Crawler.CrawlOnStart {
		go func() {
			defer close(crawlDone)
			if _, err := a.Crawl(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("background crawl failed", zap.Error(err))
			}
		}()
	} else {
		close(crawlDone)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case <-crawlDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("background crawl did not stop before shutdown deadline")
	}

	if err, ok := <-serveErr; ok && err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync on stderr-backed loggers reports EINVAL on some platforms.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
