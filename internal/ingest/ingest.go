// Package ingest implements the Ingest API: validate an upload, rasterize
// it into one image per page, and create the Job/PageJob rows in a single
// transaction. Processing itself happens asynchronously via the worker
// pool; Submit returns as soon as the rows exist.
package ingest

import (
	"context"
	"mime/multipart"
	"path/filepath"
	"strings"

	"ocr-job-service/internal/core/domain"
	"ocr-job-service/internal/core/ports"
	pkgerrors "ocr-job-service/pkg/errors"
	pkglogger "ocr-job-service/pkg/logger"
	"ocr-job-service/pkg/validator"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	store      ports.Store
	rasterizer ports.Rasterizer
	validator  *validator.Validator
	valConfig  *validator.Config
	logger     zerolog.Logger
}

func New(store ports.Store, rasterizer ports.Rasterizer, v *validator.Validator, valConfig *validator.Config, logger zerolog.Logger) *Service {
	return &Service{store: store, rasterizer: rasterizer, validator: v, valConfig: valConfig, logger: logger.With().Str("component", "ingest").Logger()}
}

// SubmitResult is what the Ingest API hands back to a caller immediately
// after accepting an upload.
type SubmitResult struct {
	JobID      string
	TotalPages int
}

// Submit validates fileHeader/content against the configured upload
// policy, rasterizes it into per-page images, and persists a new Job with
// one queued PageJob per page.
func (s *Service) Submit(ctx context.Context, fileHeader *multipart.FileHeader, content []byte) (*SubmitResult, error) {
	if err := s.validator.ValidateFile(fileHeader, s.valConfig); err != nil {
		if sizeErr, ok := err.(*validator.FileSizeExceededError); ok {
			return nil, pkgerrors.Wrap(sizeErr, pkgerrors.FileTooLargeError, "FILE_SIZE_EXCEEDED", "upload exceeds maximum allowed size")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ValidationError, "UPLOAD_REJECTED", "upload rejected")
	}
	if err := s.validator.ValidateFileContent(fileHeader.Filename, content, s.valConfig); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ValidationError, "UPLOAD_CONTENT_MISMATCH", "upload content does not match an allowed type")
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), ".")

	pages, err := s.rasterizer.Rasterize(ctx, fileType, content)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("rasterization failed")
		return nil, pkgerrors.Wrap(err, pkgerrors.Unexpected, "RASTERIZE_FAILED", "failed to rasterize upload")
	}
	if len(pages) == 0 {
		return nil, pkgerrors.NewUnexpectedError("rasterization produced zero pages")
	}

	job := &domain.Job{
		ID:               uuid.New().String(),
		OriginalFilename: fileHeader.Filename,
		FileType:         fileType,
		TotalPages:       len(pages),
	}

	inputs := make([]domain.NewPageInput, len(pages))
	for i, img := range pages {
		inputs[i] = domain.NewPageInput{PageNumber: i + 1, ImageData: img}
	}

	if err := s.store.CreateJobWithPages(ctx, job, inputs); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist job")
		return nil, pkgerrors.Wrap(err, pkgerrors.StoreError, "STORE_ERROR", "failed to persist job")
	}

	pkglogger.Get().LogJobSubmitted(ctx, job.ID, job.OriginalFilename, job.TotalPages)

	return &SubmitResult{JobID: job.ID, TotalPages: job.TotalPages}, nil
}
