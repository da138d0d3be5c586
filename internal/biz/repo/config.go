package repo

import (
	"context"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// ConfigRepo is the configuration provider interface
// Responsible for the business config held in memory and persisted to a JSON file
type ConfigRepo interface {
	// Get returns a snapshot of the in-memory config
	Get() *domain.BotConfig

	// Save deep-merges a partial JSON object and persists the result.
	// On validation failure the in-memory config is left unchanged.
	Save(ctx context.Context, partial map[string]any) error

	// Update applies fn to a copy of the config, validates and persists it
	Update(ctx context.Context, fn func(cfg *domain.BotConfig) error) error

	// Reload re-reads the config file
	Reload(ctx context.Context) error
}
