package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"ocr-job-service/internal/core/domain"
)

// Hosted talks to a hosted multimodal OCR model over HTTP. It runs a
// first pass asking for general markdown, then a cheap heuristic decides
// whether the page likely contains a table the first pass didn't render
// well; if so, a second pass asks the model for an HTML table
// specifically, which is converted to markdown and appended.
type Hosted struct {
	endpoint string
	token    string
	client   *http.Client
	html2md  *md.Converter
}

func NewHosted(endpoint, token string, client *http.Client) *Hosted {
	if client == nil {
		client = http.DefaultClient
	}
	converter := md.NewConverter("", true, &md.Options{
		HorizontalRule:   "---",
		BulletListMarker: "*",
		CodeBlockStyle:   "fenced",
		Fence:            "```",
		EmDelimiter:      "*",
		StrongDelimiter:  "**",
		LinkStyle:        "inlined",
	})
	return &Hosted{endpoint: endpoint, token: token, client: client, html2md: converter}
}

func (h *Hosted) Name() string { return "hosted" }

func (h *Hosted) ProcessImage(ctx context.Context, image []byte) (string, error) {
	if h.endpoint == "" || h.token == "" {
		return "", fmt.Errorf("%w: hosted backend requires an endpoint and HF_TOKEN", domain.ErrBackendNotConfigured)
	}

	markdown, err := h.callModel(ctx, image, "Markdown")
	if err != nil {
		return "", err
	}

	if hasTableSignature(markdown) {
		tableHTML, err := h.callModel(ctx, image, "Table")
		if err == nil && strings.Contains(tableHTML, "<table") {
			tableMD, convErr := h.html2md.ConvertString(tableHTML)
			if convErr == nil {
				markdown = markdown + "\n\n<!-- HTML tables with rowspan/colspan -->\n\n" + tableMD
			}
		}
		// A failed second pass is not fatal: the first-pass markdown still
		// stands as the page's result.
	}

	return markdown, nil
}

// hasTableSignature flags markdown that contains a pipe plus either a
// table-separator row or a left-aligned column marker, the cue that the
// first pass rendered (or attempted to render) a table the second "Table"
// pass should be given a chance to redo as proper HTML.
func hasTableSignature(markdown string) bool {
	return strings.Contains(markdown, "|") &&
		(strings.Contains(markdown, "---") || strings.Contains(markdown, "| :"))
}

type modelRequest struct {
	ImageBase64 string `json:"image_base64"`
	Task        string `json:"task"`
}

type modelResponse struct {
	Text string `json:"text"`
}

func (h *Hosted) callModel(ctx context.Context, image []byte, task string) (string, error) {
	payload, err := json.Marshal(modelRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Task:        task,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("hosted model request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}
