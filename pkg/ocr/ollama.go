package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const extractPrompt = "Transcribe all text visible in this image exactly as written. " +
	"Output only the transcribed text without commentary. If there is no text, output nothing."

// OllamaExtractor runs OCR through a multimodal Ollama model (llava, llama3.2-vision, ...).
type OllamaExtractor struct {
	BaseURL string
	Model   string
	client  *http.Client
}

var _ Extractor = (*OllamaExtractor)(nil)

func NewOllamaExtractor(baseURL, model string) *OllamaExtractor {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	return &OllamaExtractor{
		BaseURL: baseURL,
		Model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (e *OllamaExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}

	body, err := json.Marshal(generateRequest{
		Model:  e.Model,
		Prompt: extractPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ocr error: status %d, body: %s", resp.StatusCode, string(msg))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ocr error: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}
