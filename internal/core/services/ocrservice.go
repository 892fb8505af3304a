// Package services hosts the core application logic sitting between the
// HTTP adapter and the Store/pool ports: turning persisted rows into the
// shapes the Query/Control API returns, with no transport concerns of its
// own.
package services

import (
	"context"
	"encoding/json"

	"ocr-job-service/internal/core/domain"
	"ocr-job-service/internal/core/ports"
	pkgerrors "ocr-job-service/pkg/errors"

	"github.com/rs/zerolog"
)

// PoolStatus is the subset of worker pool state the health endpoint needs.
// It is satisfied by *worker.Pool without this package importing it
// directly, keeping the dependency pointed core -> ports rather than
// core -> adapters.
type PoolStatus interface {
	WorkerCount() int
	ActiveWorkers() int
}

type JobStatus struct {
	JobID          string       `json:"job_id"`
	Status         domain.Status `json:"status"`
	TotalPages     int          `json:"total_pages"`
	CompletedPages int          `json:"completed_pages"`
	FailedPages    int          `json:"failed_pages"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

type JobResult struct {
	JobID      string               `json:"job_id"`
	Status     domain.Status        `json:"status"`
	Pages      []domain.PageResult  `json:"pages"`
	Sections   []domain.Section     `json:"sections,omitempty"`
	TotalPages int                  `json:"total_pages"`
}

type JobList struct {
	Jobs     []*domain.Job `json:"jobs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

type Health struct {
	Status        string `json:"status"`
	WorkerCount   int    `json:"worker_count"`
	ActiveWorkers int    `json:"active_workers"`
	QueueDepth    int    `json:"queue_depth"`
	DBPath        string `json:"db_path"`
}

// SectionParser matches the http package's goldmark-backed ParseSections
// function without this package depending on the http adapter package.
type SectionParser func(pages []domain.PageResult) []domain.Section

type Service struct {
	store         ports.Store
	pool          PoolStatus
	resultCache   ports.ResultCache
	dbPath        string
	parseSections SectionParser
	logger        zerolog.Logger
}

func New(store ports.Store, pool PoolStatus, resultCache ports.ResultCache, dbPath string, parseSections SectionParser, logger zerolog.Logger) *Service {
	return &Service{
		store:         store,
		pool:          pool,
		resultCache:   resultCache,
		dbPath:        dbPath,
		parseSections: parseSections,
		logger:        logger.With().Str("component", "ocr_service").Logger(),
	}
}

func (s *Service) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, translateNotFound(err, "job")
	}

	pages, err := s.store.ListPageJobs(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.StoreError, "STORE_ERROR", "failed to list page jobs")
	}

	completed, failed := 0, 0
	for _, p := range pages {
		switch p.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusFailed:
			failed++
		}
	}

	return &JobStatus{
		JobID:          job.ID,
		Status:         job.Status,
		TotalPages:     job.TotalPages,
		CompletedPages: completed,
		FailedPages:    failed,
		CreatedAt:      job.CreatedAt.Format(timeFormat),
		UpdatedAt:      job.UpdatedAt.Format(timeFormat),
	}, nil
}

// Result assembles a job's pages (and, on request, its sections) for the
// result endpoint. Completed jobs are cache-aside in front of the Store's
// GetJob/ListPageJobs read path: the hot path here is a client polling
// status until completion and then immediately fetching the result, and a
// completed job's result never changes, so it is safe to cache
// unconditionally once reached. The cache is always populated with
// sections included (sections are cheap to compute once pages are in
// hand) and trimmed on a cache hit if the caller didn't ask for them, so
// a single cached entry serves both request shapes.
func (s *Service) Result(ctx context.Context, jobID string, includeSections bool) (*JobResult, error) {
	if s.resultCache != nil {
		if cached, ok := s.resultCache.GetResult(ctx, jobID); ok {
			var result JobResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				if !includeSections {
					result.Sections = nil
				}
				return &result, nil
			}
			s.logger.Warn().Str("job_id", jobID).Msg("result cache entry unreadable, falling back to store")
		}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, translateNotFound(err, "job")
	}

	pageJobs, err := s.store.ListPageJobs(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.StoreError, "STORE_ERROR", "failed to list page jobs")
	}

	pages := make([]domain.PageResult, len(pageJobs))
	for i, p := range pageJobs {
		pages[i] = domain.PageResult{
			PageNumber:   p.PageNumber,
			Status:       p.Status,
			MarkdownText: p.MarkdownText,
			ErrorMessage: p.ErrorMessage,
		}
	}

	var sections []domain.Section
	if s.parseSections != nil && (includeSections || (job.Status == domain.StatusCompleted && s.resultCache != nil)) {
		sections = s.parseSections(pages)
	}

	result := &JobResult{
		JobID:      job.ID,
		Status:     job.Status,
		Pages:      pages,
		Sections:   sections,
		TotalPages: job.TotalPages,
	}

	if job.Status == domain.StatusCompleted && s.resultCache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := s.resultCache.SetResult(ctx, jobID, string(data)); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to populate result cache")
			}
		}
	}

	if !includeSections {
		result.Sections = nil
	}

	return result, nil
}

func (s *Service) List(ctx context.Context, status domain.Status, page, pageSize int) (*JobList, error) {
	jobs, total, err := s.store.ListJobs(ctx, status, page, pageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.StoreError, "STORE_ERROR", "failed to list jobs")
	}
	return &JobList{Jobs: jobs, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *Service) Delete(ctx context.Context, jobID string) error {
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return translateNotFound(err, "job")
	}
	if s.resultCache != nil {
		if err := s.resultCache.Invalidate(ctx, jobID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to invalidate result cache")
		}
	}
	return nil
}

func (s *Service) HealthCheck(ctx context.Context) *Health {
	status := "ok"
	queueDepth, err := s.store.QueueDepth(ctx)
	if err != nil {
		status = "degraded"
		s.logger.Error().Err(err).Msg("health check: store unreachable")
	}

	workerCount, active := 0, 0
	if s.pool != nil {
		workerCount = s.pool.WorkerCount()
		active = s.pool.ActiveWorkers()
	}

	return &Health{
		Status:        status,
		WorkerCount:   workerCount,
		ActiveWorkers: active,
		QueueDepth:    queueDepth,
		DBPath:        s.dbPath,
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func translateNotFound(err error, resource string) error {
	if err == domain.ErrNotFound {
		return pkgerrors.NewNotFoundError(resource)
	}
	return pkgerrors.Wrap(err, pkgerrors.StoreError, "STORE_ERROR", "store operation failed")
}
