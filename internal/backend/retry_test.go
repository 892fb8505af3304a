package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"ocr-job-service/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name  string
	calls int
	fail  int // number of leading calls that fail
	err   error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) ProcessImage(ctx context.Context, image []byte) (string, error) {
	f.calls++
	if f.calls <= f.fail {
		return "", f.err
	}
	return "ok", nil
}

func newNoSleepRetrying(inner Adapter) *Retrying {
	r := NewRetrying(inner, zerolog.Nop(), nil)
	r.sleep = func(time.Duration) {}
	return r
}

func TestRetryingSucceedsAfterTransientFailures(t *testing.T) {
	inner := &fakeAdapter{name: "fake", fail: 2, err: errors.New("temporary glitch")}
	r := newNoSleepRetrying(inner)

	result, err := r.ProcessImage(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &fakeAdapter{name: "fake", fail: 10, err: errors.New("always fails")}
	r := newNoSleepRetrying(inner)

	_, err := r.ProcessImage(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Equal(t, maxAttempts, inner.calls)
}

func TestRetryingFailsImmediatelyOnMisconfiguration(t *testing.T) {
	inner := &fakeAdapter{name: "fake", fail: 10, err: domain.ErrBackendNotConfigured}
	r := newNoSleepRetrying(inner)

	_, err := r.ProcessImage(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendNotConfigured)
	assert.Equal(t, 1, inner.calls, "a configuration error should not be retried")
}
