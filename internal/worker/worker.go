// Package worker implements the fixed-size worker pool that drains the
// page-job queue: peek, claim, process, record — looping until its
// context is cancelled.
package worker

import (
	"context"
	"errors"
	"time"

	"ocr-job-service/internal/core/domain"
	"ocr-job-service/internal/core/ports"
	pkglogger "ocr-job-service/pkg/logger"
	"ocr-job-service/pkg/metrics"

	"github.com/rs/zerolog"
)

// Worker runs a single cooperative claim loop against the shared Store.
// Its identity follows the pack's worker-N-suffix convention so log lines
// and the page_jobs.worker_id column can be correlated at a glance.
type Worker struct {
	id           string
	store        ports.Store
	backend      ports.BackendAdapter
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	panicBackoff time.Duration
	onActive     func(delta int)
}

type Options struct {
	ID           string
	Store        ports.Store
	Backend      ports.BackendAdapter
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	PollInterval time.Duration
	PanicBackoff time.Duration
	// OnActive is called with +1 when the worker starts processing a claimed
	// page and -1 when it finishes, so the pool can maintain an accurate
	// active-worker count independent of the Store's own locking.
	OnActive func(delta int)
}

func New(opts Options) *Worker {
	return &Worker{
		id:           opts.ID,
		store:        opts.Store,
		backend:      opts.Backend,
		logger:       opts.Logger.With().Str("worker_id", opts.ID).Logger(),
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		panicBackoff: opts.PanicBackoff,
		onActive:     opts.OnActive,
	}
}

// Run loops until ctx is cancelled. Every iteration is wrapped in a
// recover-and-backoff safety net: an unexpected panic inside a single
// iteration must not take the whole worker down, it should log, sleep,
// and try again.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Msg("worker starting")
	defer w.logger.Info().Msg("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.runIteration(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// runIteration performs one peek/claim/process/record cycle. It returns
// true if it did useful work (so the caller should immediately loop
// again instead of sleeping the poll interval).
func (w *Worker) runIteration(ctx context.Context) (didWork bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("worker iteration panicked, backing off")
			time.Sleep(w.panicBackoff)
			didWork = false
		}
	}()

	candidate, err := w.store.NextQueuedPage(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false
		}
		w.logger.Error().Err(err).Msg("failed to peek queued page")
		time.Sleep(w.panicBackoff)
		return false
	}

	claimed, err := w.store.ClaimPageJob(ctx, candidate.ID, w.id)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			// Another worker won the race; not an error, just contention.
			return true
		}
		w.logger.Error().Err(err).Str("page_job_id", candidate.ID).Msg("failed to claim page job")
		return false
	}

	w.process(claimed)
	return true
}

// process runs a claimed page to completion. It deliberately does not take
// the pool's cancelable context for the backend call or the result write:
// once a page is claimed, Stop must let it finish rather than abort an
// in-flight backend request. The adapter's own HTTP client timeout is the
// only bound on how long this can run.
func (w *Worker) process(page *domain.PageJob) {
	if w.onActive != nil {
		w.onActive(1)
		defer w.onActive(-1)
	}

	start := time.Now()
	runCtx := context.Background()
	pkglogger.Get().LogPageClaimed(runCtx, page.ParentJobID, page.ID, w.id, page.PageNumber)

	markdown, err := w.backend.ProcessImage(runCtx, page.ImageData)

	status := domain.StatusCompleted
	errMsg := ""
	if err != nil {
		status = domain.StatusFailed
		errMsg = err.Error()
	}

	if recErr := w.store.RecordPageResult(runCtx, page.ID, status, markdown, errMsg); recErr != nil {
		w.logger.Error().Err(recErr).Str("page_job_id", page.ID).Msg("failed to record page result")
	}

	if w.metrics != nil {
		w.metrics.RecordPageProcessed(string(status), time.Since(start))
	}

	pkglogger.Get().LogPageResult(runCtx, page.ParentJobID, page.ID, w.id, string(status), 1, time.Since(start))
}
