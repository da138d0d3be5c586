package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

// Pipeline outcome reasons
const (
	ReasonAccepted      = "accepted"
	ReasonLowConfidence = "low_confidence"
	ReasonAIDisabled    = "ai_disabled"
	ReasonTimeout       = "timeout"
	ReasonEmpty         = "empty_response"
	ReasonBackendError  = "backend_error"
)

const analyticsTimeout = 2 * time.Second

var pipelineTracer = otel.Tracer("whatsapp-agent/usecase")

// PipelineConfig contains AI pipeline configuration
type PipelineConfig struct {
	EnvEnabled          bool          // AI_ENABLED, OR-ed with the config flag
	ConfidenceThreshold float64       // Used when the config has no threshold
	ContextLength       int           // History turns included in the prompt
	MaxTokens           int           // Completion budget
	Temperature         float64       // Sampling temperature
	Timeout             time.Duration // Hard timeout for one completion
}

// DefaultPipelineConfig returns default pipeline configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ConfidenceThreshold: 0.7,
		ContextLength:       5,
		MaxTokens:           1000,
		Temperature:         0.7,
		Timeout:             10 * time.Second,
	}
}

// PipelineResult is the outcome of one buffered batch
type PipelineResult struct {
	Accepted   bool          `json:"accepted"`
	Reply      string        `json:"reply"`
	Raw        string        `json:"raw,omitempty"`
	Cleaned    string        `json:"cleaned,omitempty"`
	Confidence float64       `json:"confidence"`
	Threshold  float64       `json:"threshold"`
	Intent     domain.Intent `json:"intent"`
	Reason     string        `json:"reason"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// AIPipeline handles the confidence-gated AI response flow
type AIPipeline struct {
	completionRepo repo.CompletionRepo
	analyticsRepo  repo.AnalyticsRepo
	prompts        *PromptBuilder
	messages       Messages
	config         PipelineConfig
	log            *logger.Logger
}

// NewAIPipeline creates a new AI pipeline usecase. analyticsRepo may be nil.
func NewAIPipeline(
	completionRepo repo.CompletionRepo,
	analyticsRepo repo.AnalyticsRepo,
	messages Messages,
	config PipelineConfig,
	log *logger.Logger,
) *AIPipeline {
	messages = messages.WithDefaults()
	return &AIPipeline{
		completionRepo: completionRepo,
		analyticsRepo:  analyticsRepo,
		prompts:        NewPromptBuilder(messages),
		messages:       messages,
		config:         config,
		log:            logger.OrGlobal(log).Component("pipeline"),
	}
}

// Enabled reports whether an AI call would be attempted for cfg
func (uc *AIPipeline) Enabled(cfg *domain.BotConfig) bool {
	if uc.completionRepo == nil || !uc.completionRepo.Available() {
		return false
	}
	return cfg.AI.Enabled || uc.config.EnvEnabled
}

// Threshold returns the acceptance threshold for cfg
func (uc *AIPipeline) Threshold(cfg *domain.BotConfig) float64 {
	if t := cfg.AI.ConfidenceThreshold; t > 0 {
		return t
	}
	return uc.config.ConfidenceThreshold
}

// Process runs the pipeline for one buffered batch and records the outcome.
// It never mutates chat state; the caller applies the result.
func (uc *AIPipeline) Process(ctx context.Context, chatID, message string, history []domain.HistoryEntry, cfg *domain.BotConfig) *PipelineResult {
	res := uc.Evaluate(ctx, message, history, cfg)
	uc.record(chatID, res)
	return res
}

// Evaluate runs the pipeline without recording analytics
func (uc *AIPipeline) Evaluate(ctx context.Context, message string, history []domain.HistoryEntry, cfg *domain.BotConfig) *PipelineResult {
	ctx, span := pipelineTracer.Start(ctx, "ai.pipeline", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	intent := ClassifyIntent(message)
	res := &PipelineResult{
		Intent:    intent,
		Threshold: uc.Threshold(cfg),
	}
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("intent", string(intent.Category)),
			attribute.String("reason", res.Reason),
			attribute.Float64("confidence", res.Confidence),
		)
	}()

	if !uc.Enabled(cfg) {
		return uc.fail(res, ReasonAIDisabled, domain.ErrAIDisabled)
	}

	prompt := uc.prompts.Build(cfg, intent, trimHistory(history, uc.config.ContextLength), message)

	callCtx, cancel := context.WithTimeout(ctx, uc.config.Timeout)
	defer cancel()

	raw, err := uc.completionRepo.Complete(callCtx, repo.CompletionRequest{
		SystemPrompt: prompt,
		MaxTokens:    uc.config.MaxTokens,
		Temperature:  uc.config.Temperature,
		Model:        cfg.AI.GroqModel,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			metrics.AIRequestDuration.WithLabelValues("timeout").Observe(elapsed)
			return uc.fail(res, ReasonTimeout, fmt.Errorf("completion timed out after %v: %w", uc.config.Timeout, err))
		}
		metrics.AIRequestDuration.WithLabelValues("error").Observe(elapsed)
		return uc.fail(res, ReasonBackendError, fmt.Errorf("completion failed: %w", err))
	}
	metrics.AIRequestDuration.WithLabelValues("ok").Observe(elapsed)

	if strings.TrimSpace(raw) == "" {
		return uc.fail(res, ReasonEmpty, domain.ErrEmptyCompletion)
	}

	res.Raw = raw
	res.Cleaned = CleanResponse(raw)
	res.Confidence = ScoreConfidence(raw, message, intent, BuildCorpus(cfg))

	if res.Confidence >= res.Threshold {
		res.Accepted = true
		res.Reason = ReasonAccepted
		res.Reply = res.Cleaned
		return res
	}

	res.Reason = ReasonLowConfidence
	res.Reply = Format(uc.messages.HandoffFor(intent), cfg)
	uc.log.Info("AI answer rejected",
		zap.Float64("confidence", res.Confidence),
		zap.Float64("threshold", res.Threshold),
		zap.String("intent", string(intent.Category)),
	)
	return res
}

func (uc *AIPipeline) fail(res *PipelineResult, reason string, err error) *PipelineResult {
	res.Accepted = false
	res.Reason = reason
	res.Err = err
	res.Reply = Format(uc.messages.HandoffFor(res.Intent), nil)
	if reason != ReasonAIDisabled {
		uc.log.Warn("AI pipeline failed", zap.String("reason", reason), zap.Error(err))
	}
	return res
}

func (uc *AIPipeline) record(chatID string, res *PipelineResult) {
	metrics.RecordInteraction(string(res.Intent.Category), res.Reason, res.Confidence)

	if uc.analyticsRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), analyticsTimeout)
	defer cancel()

	it := domain.Interaction{
		Timestamp:   time.Now(),
		ChatID:      chatID,
		Intent:      res.Intent.Category,
		BuyingScore: res.Intent.BuyingScore,
		Confidence:  res.Confidence,
		Accepted:    res.Accepted,
		Reason:      res.Reason,
		Cleaned:     res.Raw != "" && res.Cleaned != res.Raw,
	}
	if err := uc.analyticsRepo.Record(ctx, it); err != nil {
		uc.log.Warn("Failed to record interaction", zap.Error(err))
	}
}

func trimHistory(history []domain.HistoryEntry, n int) []domain.HistoryEntry {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
