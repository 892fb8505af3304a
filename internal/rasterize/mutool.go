// Package rasterize turns an uploaded document's bytes into one PNG image
// per page. PDFs are shelled out to MuPDF's mutool; the raster image
// formats the validator already accepts are a single-page passthrough.
package rasterize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"ocr-job-service/config"
)

// Mutool rasterizes PDFs by invoking the mutool CLI against a temp file,
// mirroring the teacher's shelled-out-converter pattern (PyMuPDFConverter):
// write input to a scratch directory, invoke the external tool, collect its
// output files, clean up.
type Mutool struct {
	binPath string
	dpi     int
}

func NewMutool(cfg config.RasterizerConfig) *Mutool {
	binPath := cfg.MutoolPath
	if binPath == "" {
		binPath = "mutool"
	}
	dpi := cfg.DPI
	if dpi == 0 {
		dpi = 200
	}
	return &Mutool{binPath: binPath, dpi: dpi}
}

// Rasterize implements ports.Rasterizer. PDFs are split into one PNG per
// page via `mutool draw`; recognized raster image types pass through
// unchanged as a single page.
func (m *Mutool) Rasterize(ctx context.Context, fileType string, data []byte) ([][]byte, error) {
	switch fileType {
	case "pdf", "application/pdf":
		return m.rasterizePDF(ctx, data)
	default:
		return [][]byte{data}, nil
	}
}

func (m *Mutool) rasterizePDF(ctx context.Context, data []byte) ([][]byte, error) {
	workDir, err := os.MkdirTemp("", "ocr-rasterize-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create rasterizer scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write input pdf: %w", err)
	}

	outputPattern := filepath.Join(workDir, "page-%04d.png")

	cmd := exec.CommandContext(ctx, m.binPath, "draw",
		"-r", fmt.Sprintf("%d", m.dpi),
		"-o", outputPattern,
		inputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mutool draw failed: %w: %s", err, string(out))
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rasterizer output dir: %w", err)
	}

	var pageFiles []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".png" {
			pageFiles = append(pageFiles, e.Name())
		}
	}
	sort.Strings(pageFiles)

	if len(pageFiles) == 0 {
		return nil, fmt.Errorf("mutool draw produced no pages")
	}

	pages := make([][]byte, 0, len(pageFiles))
	for _, name := range pageFiles {
		img, err := os.ReadFile(filepath.Join(workDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read rasterized page %s: %w", name, err)
		}
		pages = append(pages, img)
	}

	return pages, nil
}
