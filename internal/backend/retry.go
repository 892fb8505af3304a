// Package backend implements the BackendAdapter port: turning a single
// page image into markdown text via an external OCR service, with a
// uniform retry policy shared by every variant.
package backend

import (
	"context"
	"errors"
	"time"

	"ocr-job-service/internal/core/domain"
	pkglogger "ocr-job-service/pkg/logger"
	"ocr-job-service/pkg/metrics"

	"github.com/rs/zerolog"
)

const maxAttempts = 3

// Retrying wraps a BackendAdapter with the pipeline's uniform retry policy:
// up to 3 attempts, exponential backoff (2^attempt seconds) before retries
// 2 and 3, and an immediate failure — no retry at all — when the inner
// adapter reports domain.ErrBackendNotConfigured, since no number of
// retries fixes a missing config.
type Retrying struct {
	inner   Adapter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	sleep   func(time.Duration)
}

// Adapter matches ports.BackendAdapter without importing it, so this
// package has no dependency on the ports package and can be tested in
// isolation.
type Adapter interface {
	ProcessImage(ctx context.Context, image []byte) (string, error)
	Name() string
}

func NewRetrying(inner Adapter, logger zerolog.Logger, m *metrics.Metrics) *Retrying {
	return &Retrying{
		inner:   inner,
		logger:  logger.With().Str("component", "backend_adapter").Str("backend", inner.Name()).Logger(),
		metrics: m,
		sleep:   time.Sleep,
	}
}

func (r *Retrying) Name() string { return r.inner.Name() }

func (r *Retrying) ProcessImage(ctx context.Context, image []byte) (string, error) {
	start := time.Now()
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts = attempt + 1
		result, err := r.inner.ProcessImage(ctx, image)
		if err == nil {
			if r.metrics != nil {
				r.metrics.RecordBackendCall(r.inner.Name(), time.Since(start), attempt, len(result))
			}
			return result, nil
		}

		lastErr = err
		if errors.Is(err, domain.ErrBackendNotConfigured) {
			r.logger.Error().Err(err).Msg("backend not configured, not retrying")
			break
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			pkglogger.Get().LogBackendRetry(ctx, r.inner.Name(), "", attempt+1, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}
			r.sleep(backoff)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordBackendCall(r.inner.Name(), time.Since(start), attempts-1, 0)
	}
	return "", lastErr
}
