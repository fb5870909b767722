// Package scheduler dispatches numbered page tasks to a fixed pool of workers
// through a bounded queue and waits for all of them to finish.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/repack-aggregator/internal/queue/memory"
)

// Defaults for Config.
const (
	DefaultWorkers    = 4
	DefaultQueueDepth = 10
)

// PageFunc processes one page. A nil return marks the page processed.
type PageFunc func(ctx context.Context, page int) error

// Config controls scheduler concurrency.
type Config struct {
	Workers    int
	QueueDepth int
}

// Scheduler owns one provider's crawl state.
type Scheduler struct {
	cfg    Config
	state  State
	logger *zap.Logger
}

// New builds a Scheduler in PhaseIdle.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// Snapshot returns the current crawl state.
func (s *Scheduler) Snapshot() Snapshot {
	return s.state.Snapshot()
}

// Reset clears the crawl state so the next Crawl starts from page 1.
func (s *Scheduler) Reset() {
	s.state.Reset()
}

// Crawl dispatches every page in (high-water mark, target] to fn and blocks
// until each dispatched page has completed. A page number is dispatched at
// most once across calls until Reset. Page failures are counted and logged,
// never returned; the only error is context cancellation.
func (s *Scheduler) Crawl(ctx context.Context, target int, fn PageFunc) (Snapshot, error) {
	if target > int(s.state.totalPages.Load()) {
		s.state.totalPages.Store(int64(target))
	}
	from, won := s.state.advance(target)
	if !won {
		s.state.setPhase(PhaseDone)
		return s.state.Snapshot(), nil
	}
	s.state.setPhase(PhaseDispatching)
	s.logger.Debug("dispatching pages", zap.Int("from", from+1), zap.Int("to", target))

	queue := memory.NewQueue[int](s.cfg.QueueDepth)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, queue, fn)
		}()
	}

	var dispatchErr error
	for page := from + 1; page <= target; page++ {
		if err := queue.Enqueue(ctx, page); err != nil {
			dispatchErr = err
			break
		}
	}
	queue.Close()
	s.state.setPhase(PhaseDraining)
	wg.Wait()
	s.state.setPhase(PhaseDone)

	snap := s.state.Snapshot()
	if dispatchErr != nil {
		return snap, fmt.Errorf("crawl interrupted: %w", dispatchErr)
	}
	if err := ctx.Err(); err != nil {
		return snap, fmt.Errorf("crawl interrupted: %w", err)
	}
	return snap, nil
}

func (s *Scheduler) work(ctx context.Context, queue *memory.Queue[int], fn PageFunc) {
	for {
		page, err := queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) && ctx.Err() == nil {
				s.logger.Error("dequeue failed", zap.Error(err))
			}
			return
		}
		if err := fn(ctx, page); err != nil {
			s.state.failed.Add(1)
			s.logger.Warn("page failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		s.state.processed.Add(1)
	}
}
