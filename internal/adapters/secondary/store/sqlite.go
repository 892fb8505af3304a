// Package store is the Store port's sole implementation: an embedded
// SQLite database opened in WAL mode with a busy-timeout retry wrapper
// around every transaction, grounded on the same connection/pragma/retry
// shape used elsewhere in the example pack for embedded job queues.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ocr-job-service/internal/core/domain"
	"ocr-job-service/internal/core/ports"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	file_type         TEXT NOT NULL,
	total_pages       INTEGER NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS page_jobs (
	id             TEXT PRIMARY KEY,
	parent_job_id  TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	page_number    INTEGER NOT NULL,
	image_data     BLOB,
	markdown_text  TEXT,
	status         TEXT NOT NULL,
	worker_id      TEXT,
	error_message  TEXT,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	UNIQUE(parent_job_id, page_number)
);

CREATE INDEX IF NOT EXISTS idx_page_jobs_status_created ON page_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_page_jobs_parent ON page_jobs(parent_job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
`

// Store is the SQLite-backed implementation of ports.Store.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database file at path, applies
// pragmas for a single-writer embedded workload, and runs the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// runTx retries the whole transaction body on SQLITE_BUSY, mirroring the
// retry-on-busy helper pattern used for embedded single-writer databases
// elsewhere in the reference pack.
func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		err := func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback()

			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyError(err) {
			return err
		}
	}
	return lastErr
}

func (s *Store) CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.NewPageInput) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Status = domain.StatusQueued
	job.TotalPages = len(pages)

	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, original_filename, file_type, total_pages, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.OriginalFilename, job.FileType, job.TotalPages, job.Status, job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO page_jobs (id, parent_job_id, page_number, image_data, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare page insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range pages {
			if _, err := stmt.ExecContext(ctx, uuid.New().String(), job.ID, p.PageNumber, p.ImageData, domain.StatusQueued, now, now); err != nil {
				return fmt.Errorf("insert page %d: %w", p.PageNumber, err)
			}
		}
		return nil
	})
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, original_filename, file_type, total_pages, status, created_at, updated_at FROM jobs WHERE id = ?`, jobID)

	var j domain.Job
	if err := row.Scan(&j.ID, &j.OriginalFilename, &j.FileType, &j.TotalPages, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *Store) ListPageJobs(ctx context.Context, parentJobID string) ([]*domain.PageJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_job_id, page_number, markdown_text, status, worker_id, error_message, created_at, updated_at
		 FROM page_jobs WHERE parent_job_id = ? ORDER BY page_number`, parentJobID)
	if err != nil {
		return nil, fmt.Errorf("query page jobs: %w", err)
	}
	defer rows.Close()

	var pages []*domain.PageJob
	for rows.Next() {
		var p domain.PageJob
		var markdown, workerID, errMsg sql.NullString
		if err := rows.Scan(&p.ID, &p.ParentJobID, &p.PageNumber, &markdown, &p.Status, &workerID, &errMsg, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page job: %w", err)
		}
		p.MarkdownText = markdown.String
		p.WorkerID = workerID.String
		p.ErrorMessage = errMsg.String
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

func (s *Store) ListJobs(ctx context.Context, status domain.Status, page, pageSize int) ([]*domain.Job, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, original_filename, file_type, total_pages, status, created_at, updated_at
		FROM jobs %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, where)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.OriginalFilename, &j.FileType, &j.TotalPages, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, total, rows.Err()
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_jobs WHERE status = ?`, domain.StatusQueued).Scan(&n)
	return n, err
}

func (s *Store) NextQueuedPage(ctx context.Context) (*domain.PageJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_job_id, page_number, image_data, status, created_at, updated_at
		 FROM page_jobs WHERE status = ? ORDER BY created_at LIMIT 1`, domain.StatusQueued)

	var p domain.PageJob
	if err := row.Scan(&p.ID, &p.ParentJobID, &p.PageNumber, &p.ImageData, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan next queued page: %w", err)
	}
	return &p, nil
}

// ClaimPageJob is the only at-most-once-execution primitive in the system:
// the conditional UPDATE either claims exactly one row or claims nothing,
// and SQLite's own locking makes the check-and-set atomic against any
// concurrent claim from another worker.
func (s *Store) ClaimPageJob(ctx context.Context, pageJobID, workerID string) (*domain.PageJob, error) {
	now := time.Now().UTC()
	var claimed *domain.PageJob

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE page_jobs SET status = ?, worker_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
			domain.StatusProcessing, workerID, now, pageJobID, domain.StatusQueued,
		)
		if err != nil {
			return fmt.Errorf("claim page job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM page_jobs WHERE id = ?`, pageJobID).Scan(&exists); err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return domain.ErrAlreadyClaimed
		}

		row := tx.QueryRowContext(ctx,
			`SELECT id, parent_job_id, page_number, image_data, status, worker_id, created_at, updated_at
			 FROM page_jobs WHERE id = ?`, pageJobID)
		var p domain.PageJob
		if err := row.Scan(&p.ID, &p.ParentJobID, &p.PageNumber, &p.ImageData, &p.Status, &p.WorkerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}
		claimed = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordPageResult sets the terminal state of a claimed page and
// recomputes its parent's status in the same transaction, so a reader
// never observes the page done but the parent stale.
func (s *Store) RecordPageResult(ctx context.Context, pageJobID string, status domain.Status, markdownText, errorMessage string) error {
	now := time.Now().UTC()
	return s.runTx(ctx, func(tx *sql.Tx) error {
		var parentID string
		if err := tx.QueryRowContext(ctx, `SELECT parent_job_id FROM page_jobs WHERE id = ?`, pageJobID).Scan(&parentID); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE page_jobs SET status = ?, markdown_text = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			status, nullableString(markdownText), nullableString(errorMessage), now, pageJobID,
		); err != nil {
			return fmt.Errorf("record page result: %w", err)
		}

		return recomputeParentStatusTx(ctx, tx, parentID, now)
	})
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// recomputeParentStatusTx is the status-derivation rule as a pure function
// of the child status multiset: all completed -> completed; any failed and
// the rest terminal -> failed; any still processing -> processing;
// otherwise the parent is left alone (e.g. still queued pages remain).
func recomputeParentStatusTx(ctx context.Context, tx *sql.Tx, parentID string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `SELECT status FROM page_jobs WHERE parent_job_id = ?`, parentID)
	if err != nil {
		return fmt.Errorf("load child statuses: %w", err)
	}
	defer rows.Close()

	var statuses []domain.Status
	for rows.Next() {
		var st domain.Status
		if err := rows.Scan(&st); err != nil {
			return err
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}

	newStatus, ok := deriveParentStatus(statuses)
	if !ok {
		return nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, newStatus, now, parentID)
	return err
}

// deriveParentStatus is property P3 from the spec: a pure function of the
// child status multiset, never hand-set by a caller.
func deriveParentStatus(statuses []domain.Status) (domain.Status, bool) {
	allCompleted := true
	anyFailed := false
	anyProcessing := false
	allTerminal := true

	for _, st := range statuses {
		switch st {
		case domain.StatusCompleted:
		case domain.StatusFailed:
			anyFailed = true
			allCompleted = false
		case domain.StatusProcessing:
			anyProcessing = true
			allCompleted = false
			allTerminal = false
		case domain.StatusQueued:
			allCompleted = false
			allTerminal = false
		}
	}

	switch {
	case allCompleted:
		return domain.StatusCompleted, true
	case anyFailed && allTerminal:
		return domain.StatusFailed, true
	case anyProcessing:
		return domain.StatusProcessing, true
	default:
		return "", false
	}
}

var _ ports.Store = (*Store)(nil)
