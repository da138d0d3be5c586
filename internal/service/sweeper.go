package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// Sweeper defaults
const (
	DefaultSweepInterval  = time.Hour
	DefaultChatIdleTTL    = 7 * 24 * time.Hour
	DefaultAnalyticsTTL   = 30 * 24 * time.Hour
	sweepOperationTimeout = 30 * time.Second
)

// SweeperConfig contains sweeper configuration
type SweeperConfig struct {
	Interval     time.Duration
	ChatIdleTTL  time.Duration
	AnalyticsTTL time.Duration
}

// Sweeper periodically removes idle chats and old analytics rows
type Sweeper struct {
	chatRepo      repo.ChatStateRepo
	analyticsRepo repo.AnalyticsRepo
	config        SweeperConfig
	log           *logger.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new sweeper. analyticsRepo may be nil.
func NewSweeper(chatRepo repo.ChatStateRepo, analyticsRepo repo.AnalyticsRepo, config SweeperConfig, log *logger.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.ChatIdleTTL <= 0 {
		config.ChatIdleTTL = DefaultChatIdleTTL
	}
	if config.AnalyticsTTL <= 0 {
		config.AnalyticsTTL = DefaultAnalyticsTTL
	}
	return &Sweeper{
		chatRepo:      chatRepo,
		analyticsRepo: analyticsRepo,
		config:        config,
		log:           logger.OrGlobal(log).Component("sweeper"),
		now:           time.Now,
	}
}

// Start runs one sweep immediately, then every interval
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.log.Info("Sweeper started", zap.Duration("interval", s.config.Interval))
}

// Stop stops the sweeper and waits for the loop to exit
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	s.Sweep(s.ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep runs one pass
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepOperationTimeout)
	defer cancel()
	now := s.now()

	removed, err := s.chatRepo.Sweep(ctx, now.Add(-s.config.ChatIdleTTL))
	if err != nil {
		s.log.Warn("Chat sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.log.Info("Removed idle chats", zap.Int("count", removed), zap.Int("remaining", s.chatRepo.Len()))
	}

	if s.analyticsRepo == nil {
		return
	}
	pruned, err := s.analyticsRepo.Prune(ctx, now.Add(-s.config.AnalyticsTTL))
	if err != nil {
		s.log.Warn("Analytics prune failed", zap.Error(err))
	} else if pruned > 0 {
		s.log.Info("Pruned analytics", zap.Int64("rows", pruned))
	}
}
