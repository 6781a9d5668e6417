package llm

import (
	"context"
	"log"
	"strings"
	"time"
)

// DefaultTitle is used when no query is available or generation fails.
const DefaultTitle = "New Chat"

const titleModel = "gpt-4o-mini"

// Completer performs a one-shot, non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, model string, history []Message, maxTokens int) (string, error)
}

// TitleFromQuery asks a small model for a short session title derived
// from the first query. Best effort: any failure falls back to
// DefaultTitle.
func TitleFromQuery(ctx context.Context, completer Completer, query string) string {
	if query == "" {
		return DefaultTitle
	}
	if len(query) > 500 {
		query = query[:500]
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	title, err := completer.Complete(ctx, titleModel, []Message{
		{Role: "system", Content: "Generate a short 3-8 word title. Return only the title."},
		{Role: "user", Content: `Title for: "` + query + `"`},
	}, 20)
	if err != nil {
		log.Printf("Title generation failed: %v", err)
		return DefaultTitle
	}

	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if len(title) < 2 {
		return DefaultTitle
	}
	if len(title) > 100 {
		title = title[:100]
	}
	return title
}
