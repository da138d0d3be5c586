package repo

import (
	"context"
)

// CompletionRequest is a single-shot completion call
type CompletionRequest struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string // empty uses the adapter default
}

// CompletionRepo is the LLM backend interface
type CompletionRepo interface {
	// Available reports whether the backend is configured
	Available() bool

	// Complete returns the completion text. Callers bound it with ctx.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
