package groq

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"

	topP = 0.8
)

var tracer = otel.Tracer("whatsapp-agent/groq")

// Client is the Groq API client using the OpenAI-compatible interface
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new Groq client
func NewClient(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Model returns the default model
func (c *Client) Model() string {
	return c.model
}

// Complete sends a single system prompt and returns the first choice.
// The caller bounds the call with ctx.
func (c *Client) Complete(ctx context.Context, systemPrompt, model string, maxTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.model
	}

	ctx, span := tracer.Start(ctx, "groq.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("model", model), attribute.Int("max_tokens", maxTokens))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		Temperature: float32(temperature),
		TopP:        topP,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	span.SetAttributes(attribute.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}
