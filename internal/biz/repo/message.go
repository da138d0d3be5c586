package repo

import (
	"context"
)

// MessageRepo is the message repository interface
// Responsible for delivering text to the chat network
type MessageRepo interface {
	// SendText sends a text message; failures are best-effort for callers
	SendText(ctx context.Context, chatID, text string) error
}
