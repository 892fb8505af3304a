package ingest

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"ocr-job-service/internal/core/domain"
	pkgerrors "ocr-job-service/pkg/errors"
	"ocr-job-service/pkg/validator"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, fileType string, data []byte) ([][]byte, error) {
	return f.pages, f.err
}

type recordingStore struct {
	createdJob   *domain.Job
	createdPages []domain.NewPageInput
	err          error
}

func (s *recordingStore) CreateJobWithPages(ctx context.Context, job *domain.Job, pages []domain.NewPageInput) error {
	if s.err != nil {
		return s.err
	}
	s.createdJob = job
	s.createdPages = pages
	return nil
}
func (s *recordingStore) GetJob(ctx context.Context, id string) (*domain.Job, error) { return nil, nil }
func (s *recordingStore) ListPageJobs(ctx context.Context, jobID string) ([]*domain.PageJob, error) {
	return nil, nil
}
func (s *recordingStore) ListJobs(ctx context.Context, status domain.Status, page, pageSize int) ([]*domain.Job, int, error) {
	return nil, 0, nil
}
func (s *recordingStore) DeleteJob(ctx context.Context, id string) error        { return nil }
func (s *recordingStore) QueueDepth(ctx context.Context) (int, error)           { return 0, nil }
func (s *recordingStore) NextQueuedPage(ctx context.Context) (*domain.PageJob, error) {
	return nil, domain.ErrNotFound
}
func (s *recordingStore) ClaimPageJob(ctx context.Context, pageJobID, workerID string) (*domain.PageJob, error) {
	return nil, domain.ErrNotFound
}
func (s *recordingStore) RecordPageResult(ctx context.Context, pageJobID string, status domain.Status, markdownText, errorMessage string) error {
	return nil
}
func (s *recordingStore) Close() error { return nil }

func multipartFileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, "/", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(10<<20))

	_, fh, err := req.FormFile("file")
	require.NoError(t, err)
	return fh
}

func TestSubmitCreatesJobWithOnePageJobPerRasterizedPage(t *testing.T) {
	store := &recordingStore{}
	raster := &fakeRasterizer{pages: [][]byte{[]byte("page1"), []byte("page2"), []byte("page3")}}
	v := validator.New(validator.DefaultConfig())

	svc := New(store, raster, v, validator.DefaultConfig(), zerolog.Nop())

	content := []byte("%PDF-1.4\nfake pdf body that is long enough to pass min size checks")
	fh := multipartFileHeader(t, "doc.pdf", "application/pdf", content)

	result, err := svc.Submit(context.Background(), fh, content)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalPages)
	require.NotNil(t, store.createdJob)
	assert.Equal(t, "doc.pdf", store.createdJob.OriginalFilename)
	assert.Equal(t, "pdf", store.createdJob.FileType)
	require.Len(t, store.createdPages, 3)
	assert.Equal(t, 1, store.createdPages[0].PageNumber)
}

func TestSubmitRejectsDisallowedExtension(t *testing.T) {
	store := &recordingStore{}
	raster := &fakeRasterizer{pages: [][]byte{[]byte("page")}}
	v := validator.New(validator.DefaultConfig())
	svc := New(store, raster, v, validator.DefaultConfig(), zerolog.Nop())

	content := []byte("just some executable-looking bytes")
	fh := multipartFileHeader(t, "virus.exe", "application/octet-stream", content)

	_, err := svc.Submit(context.Background(), fh, content)
	require.Error(t, err)
	assert.Nil(t, store.createdJob)
}

func TestSubmitRejectsOversizeFileWith413(t *testing.T) {
	store := &recordingStore{}
	raster := &fakeRasterizer{pages: [][]byte{[]byte("page")}}
	cfg := &validator.Config{
		MaxFileSize:        10,
		MinFileSize:        1,
		RequireContentType: true,
		AllowedMimeTypes:   []string{"image/png"},
		AllowedExtensions:  []string{".png"},
	}
	v := validator.New(cfg)
	svc := New(store, raster, v, cfg, zerolog.Nop())

	content := bytes.Repeat([]byte{0x89}, 51)
	fh := multipartFileHeader(t, "scan.png", "image/png", content)

	_, err := svc.Submit(context.Background(), fh, content)
	require.Error(t, err)
	assert.Nil(t, store.createdJob)

	appErr, ok := err.(*pkgerrors.AppError)
	require.True(t, ok)
	assert.Equal(t, pkgerrors.FileTooLargeError, appErr.Type)
	assert.Equal(t, 413, appErr.HTTPStatus)
}

func TestSubmitRejectsContentMismatch(t *testing.T) {
	store := &recordingStore{}
	raster := &fakeRasterizer{pages: [][]byte{[]byte("page")}}
	v := validator.New(validator.DefaultConfig())
	svc := New(store, raster, v, validator.DefaultConfig(), zerolog.Nop())

	content := []byte("this is plain text pretending to be a pdf, not actual pdf bytes")
	fh := multipartFileHeader(t, "doc.pdf", "application/pdf", content)

	_, err := svc.Submit(context.Background(), fh, content)
	require.Error(t, err)
	assert.Nil(t, store.createdJob)
}
