package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"

	_ "modernc.org/sqlite"
)

// InteractionPublisher receives every recorded interaction
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, it domain.Interaction) error
}

// AnalyticsRepo implements the Analytics repository on SQLite
type AnalyticsRepo struct {
	db        *sql.DB
	publisher InteractionPublisher
	log       *logger.Logger
}

// NewAnalyticsRepo creates a new Analytics repository. publisher may be nil.
func NewAnalyticsRepo(dbPath string, publisher InteractionPublisher, log *logger.Logger) (*AnalyticsRepo, error) {
	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Create table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			date_key TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			buying_score REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			accepted INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			cleaned INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_ai_interactions_ts ON ai_interactions(ts)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &AnalyticsRepo{
		db:        db,
		publisher: publisher,
		log:       logger.OrGlobal(log).Component("analytics"),
	}, nil
}

var _ repo.AnalyticsRepo = (*AnalyticsRepo)(nil)

// Record stores one interaction and forwards it to the publisher
func (r *AnalyticsRepo) Record(ctx context.Context, it domain.Interaction) error {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_interactions (ts, date_key, chat_id, intent, buying_score, confidence, accepted, reason, cleaned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.Timestamp.UnixMilli(),
		domain.DateKey(it.Timestamp),
		it.ChatID,
		string(it.Intent),
		it.BuyingScore,
		it.Confidence,
		boolToInt(it.Accepted),
		it.Reason,
		boolToInt(it.Cleaned),
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishInteraction(ctx, it); err != nil {
			r.log.Warn("Failed to publish interaction", zap.Error(err))
		}
	}
	return nil
}

// Summary aggregates the last days calendar days ending at now
func (r *AnalyticsRepo) Summary(ctx context.Context, days int, now time.Time) (*domain.AnalyticsSummary, error) {
	if days <= 0 {
		days = 7
	}
	local := now.Local()
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, -(days - 1))

	rows, err := r.db.QueryContext(ctx, `
		SELECT date_key, intent, confidence, accepted, reason, cleaned
		FROM ai_interactions
		WHERE ts >= ?
	`, start.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]*domain.DailyStats)
	confSum := make(map[string]float64)
	for rows.Next() {
		var dateKey, intent, reason string
		var confidence float64
		var accepted, cleaned int
		if err := rows.Scan(&dateKey, &intent, &confidence, &accepted, &reason, &cleaned); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		ds, ok := byDay[dateKey]
		if !ok {
			ds = &domain.DailyStats{Date: dateKey, Intents: make(map[domain.IntentCategory]int)}
			byDay[dateKey] = ds
		}
		ds.TotalInteractions++
		ds.Intents[domain.IntentCategory(intent)]++
		confSum[dateKey] += confidence
		if accepted == 1 {
			ds.Successful++
		} else {
			ds.DerivationsToHuman++
		}
		if reason == "low_confidence" {
			ds.LowConfidence++
		}
		if cleaned == 1 {
			ds.CleanedResponses++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}

	summary := &domain.AnalyticsSummary{Days: days, Daily: []domain.DailyStats{}}
	var totalConf float64
	successful := 0
	for key, ds := range byDay {
		ds.AverageConfidence = confSum[key] / float64(ds.TotalInteractions)
		summary.TotalInteractions += ds.TotalInteractions
		successful += ds.Successful
		totalConf += confSum[key]
		summary.Daily = append(summary.Daily, *ds)
	}
	sort.Slice(summary.Daily, func(i, j int) bool {
		return summary.Daily[i].Date < summary.Daily[j].Date
	})
	if summary.TotalInteractions > 0 {
		summary.SuccessRate = float64(successful) / float64(summary.TotalInteractions)
		summary.AverageConfidence = totalConf / float64(summary.TotalInteractions)
	}
	return summary, nil
}

// Prune deletes interactions older than before
func (r *AnalyticsRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ai_interactions WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune interactions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *AnalyticsRepo) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
