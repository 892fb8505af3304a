package domain

import "time"

// Status is shared between Job and PageJob. Transitions only move forward:
// queued -> processing -> {completed, failed}.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the parent record created for a single uploaded document. Its
// Status is never set directly by an API caller; it is always derived from
// the status multiset of its PageJobs (the Store's RecordPageResult
// recomputes it in the same transaction).
type Job struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	TotalPages       int       `json:"total_pages"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PageJob is one page of a Job. ImageData holds the raster bytes the
// backend adapter will be given; it is never returned over the wire.
type PageJob struct {
	ID           string    `json:"id"`
	ParentJobID  string    `json:"parent_job_id"`
	PageNumber   int       `json:"page_number"`
	ImageData    []byte    `json:"-"`
	MarkdownText string    `json:"markdown_text,omitempty"`
	Status       Status    `json:"status"`
	WorkerID     string    `json:"worker_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPageInput is what the Ingest API hands the Store per rasterized page.
type NewPageInput struct {
	PageNumber int
	ImageData  []byte
}

// Section is one heading-delimited chunk of a job's assembled markdown, as
// surfaced by the Query API's result endpoint.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// PageResult pairs a page number with its OCR outcome for the result API.
type PageResult struct {
	PageNumber   int    `json:"page_number"`
	Status       Status `json:"status"`
	MarkdownText string `json:"markdown_text,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
