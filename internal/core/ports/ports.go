package ports

import (
	"context"

	"ocr-job-service/internal/core/domain"
)

// Store is the durable state and atomic-claim port. A single implementation
// backs it (SQLite today); every method must be safe for concurrent use by
// the worker pool and the HTTP layer at once.
type Store interface {
	// CreateJobWithPages inserts the parent Job and all of its PageJobs in
	// one transaction so a reader never observes a Job with zero pages.
	CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.NewPageInput) error

	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListPageJobs(ctx context.Context, parentJobID string) ([]*domain.PageJob, error)

	// ListJobs returns a page of jobs ordered newest first, plus the total
	// count matching the filter (ignoring pagination) for the caller to
	// compute page counts.
	ListJobs(ctx context.Context, status domain.Status, page, pageSize int) ([]*domain.Job, int, error)

	// DeleteJob removes the Job and cascades to its PageJobs. Returns
	// domain.ErrNotFound if no such job exists.
	DeleteJob(ctx context.Context, jobID string) error

	QueueDepth(ctx context.Context) (int, error)

	// NextQueuedPage peeks the oldest queued page without claiming it.
	// Returns domain.ErrNotFound when the queue is empty.
	NextQueuedPage(ctx context.Context) (*domain.PageJob, error)

	// ClaimPageJob is the sole at-most-once-execution primitive: an atomic
	// conditional UPDATE that only succeeds if the row is still queued.
	// Returns domain.ErrAlreadyClaimed if another worker won the race, or
	// domain.ErrNotFound if the page job no longer exists.
	ClaimPageJob(ctx context.Context, pageJobID, workerID string) (*domain.PageJob, error)

	// RecordPageResult sets a claimed page job to a terminal state and then
	// recomputes its parent's status in the same transaction.
	RecordPageResult(ctx context.Context, pageJobID string, status domain.Status, markdownText, errorMessage string) error

	Close() error
}

// BackendAdapter is the single OCR capability every backend variant
// implements: turn one page image into markdown text.
type BackendAdapter interface {
	ProcessImage(ctx context.Context, image []byte) (string, error)
	Name() string
}

// Rasterizer turns an uploaded document's bytes into one image per page.
// Non-PDF raster formats (png/jpg/...) are a single-page passthrough.
type Rasterizer interface {
	Rasterize(ctx context.Context, fileType string, data []byte) ([][]byte, error)
}

// ResultCache is an optional cache-aside layer in front of the Store's
// read path for completed jobs. A nil-safe no-op implementation is used
// when caching is disabled or unreachable.
type ResultCache interface {
	GetResult(ctx context.Context, jobID string) (string, bool)
	SetResult(ctx context.Context, jobID, markdown string) error
	Invalidate(ctx context.Context, jobID string) error
}
