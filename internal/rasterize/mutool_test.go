package rasterize

import (
	"context"
	"testing"

	"ocr-job-service/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterizePassesRasterImagesThroughUnchanged(t *testing.T) {
	m := NewMutool(config.RasterizerConfig{MutoolPath: "mutool", DPI: 200})

	data := []byte("fake png bytes")
	pages, err := m.Rasterize(context.Background(), "image/png", data)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, data, pages[0])
}

func TestNewMutoolAppliesDefaults(t *testing.T) {
	m := NewMutool(config.RasterizerConfig{})
	assert.Equal(t, "mutool", m.binPath)
	assert.Equal(t, 200, m.dpi)
}

func TestRasterizePDFSurfacesMutoolFailure(t *testing.T) {
	// Point at a binary that cannot possibly succeed so the failure path
	// (non-zero exit, wrapped error with command output) is exercised
	// without depending on mutool being installed in the test environment.
	m := NewMutool(config.RasterizerConfig{MutoolPath: "/nonexistent/mutool-binary", DPI: 150})

	_, err := m.Rasterize(context.Background(), "pdf", []byte("%PDF-1.4\n..."))
	require.Error(t, err)
}
