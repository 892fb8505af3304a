package worker

import (
	"context"
	"fmt"
	"sync"

	"ocr-job-service/config"
	"ocr-job-service/internal/core/ports"
	"ocr-job-service/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool runs a fixed number of Workers concurrently. Unlike the teacher's
// dynamic WorkerManager, the size never changes at runtime: the spec calls
// for a fixed-N pool, not load-based scaling.
type Pool struct {
	workers []*Worker
	logger  zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	activeMu sync.Mutex
	active   int
}

// NewPool builds a Pool of cfg.NumWorkers Workers, each sharing the same Store
// and BackendAdapter. Worker IDs follow worker-<n>-<uuid suffix> so log
// lines and the page_jobs.worker_id column stay easy to correlate.
func NewPool(cfg config.WorkerConfig, store ports.Store, backend ports.BackendAdapter, logger zerolog.Logger, m *metrics.Metrics) *Pool {
	p := &Pool{logger: logger.With().Str("component", "worker_pool").Logger()}

	for n := 0; n < cfg.NumWorkers; n++ {
		id := fmt.Sprintf("worker-%d-%s", n, uuid.New().String()[:8])
		p.workers = append(p.workers, New(Options{
			ID:           id,
			Store:        store,
			Backend:      backend,
			Logger:       logger,
			Metrics:      m,
			PollInterval: cfg.PollInterval,
			PanicBackoff: cfg.PanicBackoff,
			OnActive:     p.adjustActive,
		}))
	}

	return p
}

// Start launches every worker in its own goroutine. It returns immediately;
// call Stop to request shutdown and wait for all workers to exit.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info().Int("num_workers", len(p.workers)).Msg("starting worker pool")

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Stop cancels every worker's context and blocks until they have all
// returned from their current iteration.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.logger.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

// WorkerCount reports the fixed number of workers in the pool.
func (p *Pool) WorkerCount() int {
	return len(p.workers)
}

// ActiveWorkers reports how many workers are currently mid-page, counted
// separately from anything the Store tracks internally so it remains a
// cheap in-process gauge rather than a query.
func (p *Pool) ActiveWorkers() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return p.active
}

func (p *Pool) adjustActive(delta int) {
	p.activeMu.Lock()
	p.active += delta
	p.activeMu.Unlock()
}
