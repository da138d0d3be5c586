package repo

import (
	"context"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

// AnalyticsRepo is the analytics sink interface
// Writes are fire-and-forget from the caller's perspective
type AnalyticsRepo interface {
	// Record stores one pipeline outcome
	Record(ctx context.Context, it domain.Interaction) error

	// Summary aggregates the last days days ending at now
	Summary(ctx context.Context, days int, now time.Time) (*domain.AnalyticsSummary, error)

	// Prune deletes records older than before
	Prune(ctx context.Context, before time.Time) (int64, error)
}
