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

// OpenAIChatCompletionURL is the endpoint for OpenAI chat completions.
const OpenAIChatCompletionURL = "https://api.openai.com/v1/chat/completions"

// OpenAIBackend streams chat completions from the OpenAI API.
type OpenAIBackend struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

// NewOpenAIBackend creates a backend for the public OpenAI endpoint.
func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{
		apiKey: apiKey,
		url:    OpenAIChatCompletionURL,
		// No client-level timeout: streams stay open for the full
		// completion and are bounded by the request context instead.
		httpClient: &http.Client{},
	}
}

// NewOpenAIBackendURL creates a backend against a custom endpoint. Tests
// point this at an httptest server.
func NewOpenAIBackendURL(apiKey, url string) *OpenAIBackend {
	backend := NewOpenAIBackend(apiKey)
	backend.url = url
	return backend
}

// Stream sends the history as a streaming chat completion request and
// emits each delta fragment as it arrives.
func (b *OpenAIBackend) Stream(ctx context.Context, model string, history []Message, emit func(fragment string)) error {
	requestData := map[string]interface{}{
		"model":    model,
		"stream":   true,
		"messages": history,
	}

	body, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

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
		if line == "" {
			continue
		}

		// SSE format starts with "data: "
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := line[6:]

		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed chunks
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			emit(content)
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

// Complete performs a non-streaming completion and returns the full
// assistant message. Used for short utility calls like title generation.
func (b *OpenAIBackend) Complete(ctx context.Context, model string, history []Message, maxTokens int) (string, error) {
	requestData := map[string]interface{}{
		"model":      model,
		"messages":   history,
		"max_tokens": maxTokens,
	}

	body, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned error: %s - %s", resp.Status, string(respBody))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return response.Choices[0].Message.Content, nil
}
