// Package llm integrates the language-model providers that answer chat
// queries. Each provider is a Backend that turns a role-tagged message
// history into a lazy stream of text fragments; the Registry routes a
// model identifier to the backend that serves it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedModel is returned before any fragment is produced when no
// backend serves the requested model.
var ErrUnsupportedModel = errors.New("unsupported model")

// Message is one role-tagged turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend streams completions for one provider's models. Stream calls
// emit once per text fragment, in order, and returns when the stream is
// finished or ctx is cancelled.
type Backend interface {
	Stream(ctx context.Context, model string, history []Message, emit func(fragment string)) error
}

// Registry maps model identifier prefixes to backends, mirroring how
// model families share an API ("gpt-*" vs "gemini-*").
type Registry struct {
	routes []route
}

type route struct {
	prefix  string
	backend Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register routes models with the given identifier prefix to a backend.
func (r *Registry) Register(prefix string, backend Backend) {
	r.routes = append(r.routes, route{prefix: prefix, backend: backend})
}

// BackendFor resolves the backend for a model identifier. Unknown models
// fail fast with ErrUnsupportedModel.
func (r *Registry) BackendFor(model string) (Backend, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return rt.backend, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
}

// Stream resolves the model's backend and streams from it.
func (r *Registry) Stream(ctx context.Context, model string, history []Message, emit func(fragment string)) error {
	backend, err := r.BackendFor(model)
	if err != nil {
		return err
	}
	return backend.Stream(ctx, model, history, emit)
}
