package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"ocr-job-service/config"
	ocrhttp "ocr-job-service/internal/adapters/primary/http"
	resultcache "ocr-job-service/internal/adapters/secondary"
	"ocr-job-service/internal/adapters/secondary/store"
	"ocr-job-service/internal/core/services"
	"ocr-job-service/internal/ingest"
	"ocr-job-service/internal/worker"
	"ocr-job-service/pkg/errors"
	"ocr-job-service/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRasterizer turns every upload into a fixed number of one-byte pages,
// so a test never depends on mutool being installed.
type fakeRasterizer struct{ pages int }

func (f *fakeRasterizer) Rasterize(ctx context.Context, fileType string, data []byte) ([][]byte, error) {
	out := make([][]byte, f.pages)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out, nil
}

// fakeBackend returns deterministic markdown without making any network call.
type fakeBackend struct{}

func (f *fakeBackend) ProcessImage(ctx context.Context, image []byte) (string, error) {
	return "# Page\n\nrecognized text", nil
}
func (f *fakeBackend) Name() string { return "fake" }

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	sqliteStore, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	valConfig := validator.DefaultConfig()
	v := validator.New(valConfig)

	workerCfg := config.WorkerConfig{NumWorkers: 2, PollInterval: 10 * time.Millisecond, PanicBackoff: 50 * time.Millisecond}
	pool := worker.NewPool(workerCfg, sqliteStore, &fakeBackend{}, zerolog.Nop(), nil)
	pool.Start()
	t.Cleanup(pool.Stop)

	ingestSvc := ingest.New(sqliteStore, &fakeRasterizer{pages: 2}, v, valConfig, zerolog.Nop())
	ocrSvc := services.New(sqliteStore, pool, &resultcache.NoopResultCache{}, dbPath, ocrhttp.ParseSections, zerolog.Nop())

	handler := ocrhttp.NewHandler(ingestSvc, ocrSvc, nil)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := err.(*errors.AppError); ok {
				return c.Status(appErr.HTTPStatus).JSON(errors.NewErrorResponse(appErr))
			}
			unexpected := errors.NewUnexpectedError(err.Error())
			return c.Status(unexpected.HTTPStatus).JSON(errors.NewErrorResponse(unexpected))
		},
		// Large enough that the oversize-file test exercises ValidateFile's
		// 413 path rather than Fiber's own body-size rejection.
		BodyLimit: 60 * 1024 * 1024,
	})
	handler.SetupRoutes(app)
	return app
}

func submitPDF(t *testing.T, app *fiber.App, filename string, content []byte) map[string]interface{} {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/ocr/submit", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(respBody, &result))
	return result
}

func TestSubmitStatusResultRoundTrip(t *testing.T) {
	app := newTestApp(t)

	submitted := submitPDF(t, app, "doc.pdf", []byte("%PDF-1.4\nfake pdf body long enough to pass size checks"))
	jobID, ok := submitted["job_id"].(string)
	require.True(t, ok)
	assert.Equal(t, float64(2), submitted["total_pages"])

	require.Eventually(t, func() bool {
		req := httptest.NewRequest("GET", "/ocr/status/"+jobID, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var status map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		return status["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest("GET", "/ocr/result/"+jobID+"?sections=true", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "completed", result["status"])
	pages, ok := result["pages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, pages, 2)
	assert.NotEmpty(t, result["sections"])
}

func TestSubmitRejectsDisallowedExtension(t *testing.T) {
	app := newTestApp(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "malware.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("MZ executable content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/ocr/submit", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(respBody, &result))
	errInfo, ok := result["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "validation_error", errInfo["type"])
}

func TestSubmitRejectsOversizedFileWith413(t *testing.T) {
	app := newTestApp(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="scan.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, 51*1024*1024))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/ocr/submit", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 413, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(respBody, &result))
	errInfo, ok := result["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "file_too_large_error", errInfo["type"])
}

func TestHealthEndpointReportsStoreAndQueueState(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["worker_count"])
}

func TestListAndDeleteJob(t *testing.T) {
	app := newTestApp(t)

	submitted := submitPDF(t, app, "doc2.pdf", []byte("%PDF-1.4\nanother fake pdf body long enough to pass checks"))
	jobID := submitted["job_id"].(string)

	req := httptest.NewRequest("GET", "/ocr/jobs?page=1&page_size=20", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var list map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.GreaterOrEqual(t, list["total"], float64(1))

	delReq := httptest.NewRequest("DELETE", "/ocr/jobs/"+jobID, nil)
	delResp, err := app.Test(delReq)
	require.NoError(t, err)
	assert.Equal(t, 204, delResp.StatusCode)

	statusReq := httptest.NewRequest("GET", "/ocr/status/"+jobID, nil)
	statusResp, err := app.Test(statusReq)
	require.NoError(t, err)
	assert.Equal(t, 404, statusResp.StatusCode)
}
