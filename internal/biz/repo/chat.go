package repo

import (
	"context"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// ChatStateRepo is the chat state repository interface
// Responsible for per-chat state in memory, bounded by capacity and idle expiry
type ChatStateRepo interface {
	// Get returns a snapshot of the chat's state, creating a default one
	// (evicting the least recently active chat at capacity) and refreshing lastMessageTime
	Get(ctx context.Context, chatID string, now time.Time) (*domain.ChatState, error)

	// Peek returns a snapshot without creating or touching the state
	Peek(ctx context.Context, chatID string) (*domain.ChatState, bool)

	// Save stores the state (create or update)
	Save(ctx context.Context, state *domain.ChatState) error

	// Delete removes a chat's state
	Delete(ctx context.Context, chatID string) error

	// Sweep removes states whose lastMessageTime is before the cutoff
	Sweep(ctx context.Context, before time.Time) (int, error)

	// Len returns the number of tracked chats
	Len() int
}
