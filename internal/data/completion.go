package data

import (
	"context"

	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/internal/infra/groq"
)

// groqRepo implements the Completion repository on Groq
type groqRepo struct {
	client *groq.Client
}

// NewGroqRepo creates a Completion repository. A nil client yields an
// unavailable repository, which disables the AI pipeline.
func NewGroqRepo(client *groq.Client) repo.CompletionRepo {
	return &groqRepo{client: client}
}

// Available reports whether an API client is configured
func (r *groqRepo) Available() bool {
	return r.client != nil
}

// Complete requests a completion for the prompt
func (r *groqRepo) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	if r.client == nil {
		return "", errGroqNotConfigured
	}
	return r.client.Complete(ctx, req.SystemPrompt, req.Model, req.MaxTokens, req.Temperature)
}
