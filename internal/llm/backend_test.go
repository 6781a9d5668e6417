package llm

import (
	"context"
	"errors"
	"testing"
)

type stubBackend struct {
	fragments []string
}

func (b *stubBackend) Stream(_ context.Context, _ string, _ []Message, emit func(string)) error {
	for _, fragment := range b.fragments {
		emit(fragment)
	}
	return nil
}

func TestRegistryRoutesByPrefix(t *testing.T) {
	openai := &stubBackend{}
	gemini := &stubBackend{}

	registry := NewRegistry()
	registry.Register("gpt", openai)
	registry.Register("gemini", gemini)

	tests := []struct {
		model string
		want  Backend
	}{
		{"gpt-4o", openai},
		{"gpt-4o-mini", openai},
		{"gemini-2.0-flash", gemini},
	}
	for _, tt := range tests {
		backend, err := registry.BackendFor(tt.model)
		if err != nil {
			t.Fatalf("BackendFor(%s) failed: %v", tt.model, err)
		}
		if backend != tt.want {
			t.Errorf("BackendFor(%s) routed to the wrong backend", tt.model)
		}
	}
}

func TestRegistryUnknownModelFailsFast(t *testing.T) {
	registry := NewRegistry()
	registry.Register("gpt", &stubBackend{})

	if _, err := registry.BackendFor("claude-3"); !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("Expected ErrUnsupportedModel, got %v", err)
	}

	emitted := 0
	err := registry.Stream(context.Background(), "claude-3", nil, func(string) { emitted++ })
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("Expected ErrUnsupportedModel from Stream, got %v", err)
	}
	if emitted != 0 {
		t.Errorf("Unsupported model must fail before any fragment, emitted %d", emitted)
	}
}

func TestRegistryStream(t *testing.T) {
	registry := NewRegistry()
	registry.Register("gpt", &stubBackend{fragments: []string{"a", "b"}})

	var got []string
	if err := registry.Stream(context.Background(), "gpt-4o", nil, func(fragment string) {
		got = append(got, fragment)
	}); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Unexpected fragments: %v", got)
	}
}
