package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GeminiBaseURL is the Gemini generative language API root.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiBackend streams completions from the Gemini API.
type GeminiBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiBackend creates a backend for the public Gemini endpoint.
func NewGeminiBackend(apiKey string) *GeminiBackend {
	return &GeminiBackend{
		apiKey:     apiKey,
		baseURL:    GeminiBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGeminiBackendURL creates a backend against a custom endpoint root.
func NewGeminiBackendURL(apiKey, baseURL string) *GeminiBackend {
	backend := NewGeminiBackend(apiKey)
	backend.baseURL = baseURL
	return backend
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// Stream sends the history to streamGenerateContent and emits each text
// part as it arrives. Gemini tags assistant turns with role "model".
func (b *GeminiBackend) Stream(ctx context.Context, model string, history []Message, emit func(fragment string)) error {
	contents := make([]geminiContent, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	body, err := json.Marshal(map[string]interface{}{"contents": contents})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", b.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned error: %s - %s", resp.Status, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk struct {
			Candidates []struct {
				Content struct {
					Parts []geminiPart `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal([]byte(line[6:]), &chunk); err != nil {
			continue
		}

		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					emit(part.Text)
				}
			}
			break // Only the first candidate is streamed to clients.
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read failed: %w", err)
	}
	return ctx.Err()
}
