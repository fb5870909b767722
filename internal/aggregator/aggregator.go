// Package aggregator runs provider crawls one after another and feeds their
// records into the store.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
	"github.com/JakeFAU/repack-aggregator/internal/metrics"
	"github.com/JakeFAU/repack-aggregator/internal/provider"
	"github.com/JakeFAU/repack-aggregator/internal/scheduler"
)

// DefaultPersistWorkers bounds concurrent store inserts per provider run.
const DefaultPersistWorkers = 8

// ProviderConfig is one enabled provider with its run-time settings.
type ProviderConfig struct {
	Spec        provider.Spec
	Workers     int
	Credentials provider.Credentials
}

// Config controls an Aggregator.
type Config struct {
	Providers      []ProviderConfig
	QueueDepth     int
	PersistWorkers int
	MinBodyBytes   int
}

// Report describes one provider run.
type Report struct {
	Provider      provider.Kind
	Repacker      string
	Status        string
	Pages         scheduler.Snapshot
	Entries       int64
	Persisted     int64
	PersistFailed int64
	Duration      time.Duration
	Err           error
}

// Summary collects the reports of one aggregation run in provider order.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Reports    []Report
}

// Persisted totals persisted records across providers.
func (s Summary) Persisted() int64 {
	var n int64
	for _, r := range s.Reports {
		n += r.Persisted
	}
	return n
}

// Aggregator orchestrates provider runs.
type Aggregator struct {
	cfg        Config
	newFetcher crawler.FetcherFactory
	store      crawler.Store
	logger     *zap.Logger
}

// New builds an Aggregator. Each provider run gets a fresh fetcher from
// newFetcher so session cookies never cross providers.
func New(cfg Config, newFetcher crawler.FetcherFactory, store crawler.Store, logger *zap.Logger) *Aggregator {
	if cfg.PersistWorkers <= 0 {
		cfg.PersistWorkers = DefaultPersistWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:        cfg,
		newFetcher: newFetcher,
		store:      store,
		logger:     logger,
	}
}

// Run visits every configured provider strictly in order. A provider failure
// is recorded in its report and never stops later providers; only context
// cancellation ends the run early.
func (a *Aggregator) Run(ctx context.Context) (Summary, error) {
	summary := Summary{StartedAt: time.Now()}
	a.logger.Info("aggregation started", zap.Int("providers", len(a.cfg.Providers)))

	for _, pc := range a.cfg.Providers {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = time.Now()
			return summary, fmt.Errorf("aggregation canceled: %w", err)
		}
		summary.Reports = append(summary.Reports, a.RunProvider(ctx, pc))
	}

	summary.FinishedAt = time.Now()
	a.logger.Info("aggregation finished",
		zap.Int64("persisted", summary.Persisted()),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// RunProvider authenticates, discovers, crawls and persists one provider.
// It returns only after every persistence task it started has finished.
func (a *Aggregator) RunProvider(ctx context.Context, pc ProviderConfig) Report {
	spec := pc.Spec
	start := time.Now()
	logger := a.logger.With(zap.String("provider", string(spec.Kind)))
	report := Report{Provider: spec.Kind, Repacker: spec.Repacker}

	adapter := provider.NewAdapter(spec, a.newFetcher(), provider.Options{
		MinBodyBytes: a.cfg.MinBodyBytes,
		Credentials:  pc.Credentials,
		Logger:       a.logger,
	})

	if err := adapter.Authenticate(ctx); err != nil {
		report.Err = err
		report.Status = metrics.StatusError
		if errors.Is(err, provider.ErrMissingCredentials) {
			report.Status = metrics.StatusSkipped
		}
		logger.Warn("provider skipped, authentication failed", zap.Error(err))
		return a.finish(report, start)
	}

	total := adapter.DiscoverPageCount(ctx)
	logger.Info("crawling provider", zap.Int("pages", total))

	var (
		persist       errgroup.Group
		entries       atomic.Int64
		persisted     atomic.Int64
		persistFailed atomic.Int64
	)
	persist.SetLimit(a.cfg.PersistWorkers)

	processPage := func(ctx context.Context, page int) error {
		body, err := adapter.FetchPage(ctx, page)
		if err != nil {
			metrics.ObservePage(string(spec.Kind), metrics.StatusError)
			return err
		}
		found := adapter.ExtractEntries(body, spec.PageURL(page))
		if len(found) == 0 {
			metrics.ObservePage(string(spec.Kind), metrics.StatusEmpty)
			if spec.Gated() {
				logger.Warn("gated page yielded no entries, session may have expired", zap.Int("page", page))
			}
			return nil
		}
		entries.Add(int64(len(found)))
		for _, record := range adapter.Records(found) {
			persist.Go(func() error {
				if err := a.store.Insert(ctx, record); err != nil {
					persistFailed.Add(1)
					metrics.ObserveRecord(string(spec.Kind), metrics.StatusError)
					logger.Error("persist record failed", zap.String("name", record.Name), zap.Error(err))
					return nil
				}
				persisted.Add(1)
				metrics.ObserveRecord(string(spec.Kind), metrics.StatusSuccess)
				return nil
			})
		}
		metrics.ObservePage(string(spec.Kind), metrics.StatusSuccess)
		return nil
	}

	sched := scheduler.New(scheduler.Config{Workers: pc.Workers, QueueDepth: a.cfg.QueueDepth}, logger)
	snap, crawlErr := sched.Crawl(ctx, total, processPage)
	_ = persist.Wait()

	report.Pages = snap
	report.Entries = entries.Load()
	report.Persisted = persisted.Load()
	report.PersistFailed = persistFailed.Load()
	switch {
	case crawlErr != nil:
		report.Err = crawlErr
		report.Status = metrics.StatusError
	case report.Persisted == 0 && report.PersistFailed > 0:
		report.Err = fmt.Errorf("all %d inserts failed", report.PersistFailed)
		report.Status = metrics.StatusError
	case report.Persisted == 0:
		report.Status = metrics.StatusEmpty
	default:
		report.Status = metrics.StatusSuccess
	}
	return a.finish(report, start)
}

func (a *Aggregator) finish(report Report, start time.Time) Report {
	report.Duration = time.Since(start)
	metrics.ObserveProviderRun(string(report.Provider), report.Status)
	a.logger.Info("provider finished",
		zap.String("provider", string(report.Provider)),
		zap.String("status", report.Status),
		zap.Int("pages_processed", report.Pages.Processed),
		zap.Int("pages_failed", report.Pages.Failed),
		zap.Int64("entries", report.Entries),
		zap.Int64("persisted", report.Persisted),
		zap.Int64("persist_failed", report.PersistFailed),
		zap.Duration("duration", report.Duration),
	)
	return report
}
