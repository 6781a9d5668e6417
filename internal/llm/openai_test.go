package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIStream(t *testing.T) {
	var gotRequest struct {
		Model    string    `json:"model"`
		Stream   bool      `json:"stream"`
		Messages []Message `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	backend := NewOpenAIBackendURL("test-key", server.URL)
	var fragments []string
	err := backend.Stream(context.Background(), "gpt-4o", []Message{{Role: "user", Content: "hi"}}, func(fragment string) {
		fragments = append(fragments, fragment)
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if strings.Join(fragments, "") != "Hello world" {
		t.Errorf("Unexpected fragments: %v", fragments)
	}
	if gotRequest.Model != "gpt-4o" || !gotRequest.Stream {
		t.Errorf("Unexpected request: %+v", gotRequest)
	}
	if len(gotRequest.Messages) != 1 || gotRequest.Messages[0].Content != "hi" {
		t.Errorf("Unexpected messages: %+v", gotRequest.Messages)
	}
}

func TestOpenAIStreamSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	backend := NewOpenAIBackendURL("test-key", server.URL)
	var fragments []string
	if err := backend.Stream(context.Background(), "gpt-4o", nil, func(fragment string) {
		fragments = append(fragments, fragment)
	}); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(fragments) != 1 || fragments[0] != "ok" {
		t.Errorf("Unexpected fragments: %v", fragments)
	}
}

func TestOpenAIStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	backend := NewOpenAIBackendURL("bad-key", server.URL)
	err := backend.Stream(context.Background(), "gpt-4o", nil, func(string) {
		t.Error("No fragment should be emitted on an error response")
	})
	if err == nil {
		t.Fatal("Expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "invalid key") {
		t.Errorf("Error should carry the response body, got %v", err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.MaxTokens != 20 {
			t.Errorf("Expected max_tokens 20, got %d", req.MaxTokens)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Weather in Paris"}},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIBackendURL("test-key", server.URL)
	content, err := backend.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, 20)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "Weather in Paris" {
		t.Errorf("Unexpected content %q", content)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	backend := NewOpenAIBackendURL("test-key", server.URL)
	if _, err := backend.Complete(context.Background(), "gpt-4o-mini", nil, 20); err == nil {
		t.Error("Expected error for empty choices")
	}
}
