package summarizer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a Generator backed by the OpenAI chat completions API.
func NewOpenAI(apiKey, model string, client *http.Client, opts ...option.RequestOption) Generator {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0),
	}
	return &openAIGenerator{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (g *openAIGenerator) Model() string { return g.model }

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return finish("openai", resp.Choices[0].Message.Content)
}
