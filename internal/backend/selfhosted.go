package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ocr-job-service/internal/core/domain"
)

// SelfHosted talks to a locally-run OpenAI-compatible chat-completions
// endpoint (e.g. Ollama's /v1/chat/completions), falling back to Ollama's
// native /api/generate endpoint when the OpenAI-compatible route is not
// available on the target server.
type SelfHosted struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewSelfHosted(baseURL, model string, client *http.Client) *SelfHosted {
	if client == nil {
		client = http.DefaultClient
	}
	return &SelfHosted{baseURL: baseURL, model: model, client: client}
}

func (s *SelfHosted) Name() string { return "self-hosted" }

const ocrPrompt = "Extract all text from this image and format it as markdown."

func (s *SelfHosted) ProcessImage(ctx context.Context, image []byte) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("%w: OLLAMA_URL is not set", domain.ErrBackendNotConfigured)
	}

	encoded := base64.StdEncoding.EncodeToString(image)

	text, err := s.callChatCompletions(ctx, encoded)
	if err == nil {
		return text, nil
	}

	// The OpenAI-compatible route isn't implemented by every self-hosted
	// server; fall back to Ollama's native generate endpoint rather than
	// treating that as a hard failure.
	return s.callGenerate(ctx, encoded)
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *chatImageField `json:"image_url,omitempty"`
}

type chatImageField struct {
	URL string `json:"url"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *SelfHosted) callChatCompletions(ctx context.Context, base64Image string) (string, error) {
	reqBody := chatCompletionsRequest{
		Model: s.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: ocrPrompt},
				{Type: "image_url", ImageURL: &chatImageField{URL: "data:image/png;base64," + base64Image}},
			},
		}},
		Stream: false,
	}

	var out chatCompletionsResponse
	if err := s.post(ctx, "/v1/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completions response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (s *SelfHosted) callGenerate(ctx context.Context, base64Image string) (string, error) {
	reqBody := generateRequest{
		Model:  s.model,
		Prompt: ocrPrompt,
		Images: []string{base64Image},
		Stream: false,
	}

	var out generateResponse
	if err := s.post(ctx, "/api/generate", reqBody, &out); err != nil {
		return "", err
	}
	if out.Response == "" {
		return "", fmt.Errorf("generate response missing 'response' field")
	}
	return out.Response, nil
}

func (s *SelfHosted) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// A fresh *http.Request is built per call; there is no persistent
	// client-side connection state to discard between retries.
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend request to %s failed with status %d: %s", path, resp.StatusCode, string(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
