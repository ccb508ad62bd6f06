package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model names the model used, for artifact versioning.
	Model() string
}

// New creates a Generator for the named provider: "openai", "anthropic" or "gemini".
// SDK retries are disabled: a failed generation falls back to cached output instead.
func New(provider, apiKey, model string, client *http.Client) (Generator, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch provider {
	case "openai":
		return NewOpenAI(apiKey, model, client), nil
	case "anthropic":
		return NewAnthropic(apiKey, model, client), nil
	case "gemini":
		return NewGemini(apiKey, model, client), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// stripMarkdownCodeBlock removes markdown code block wrappers from text.
// Models may wrap whole answers in ``` fences.
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence (possibly with language tag)
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		// Remove closing fence
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func finish(provider, text string) (string, error) {
	text = stripMarkdownCodeBlock(text)
	if text == "" {
		return "", fmt.Errorf("empty response from %s", provider)
	}
	return text, nil
}
