package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

const (
	// maxErrorNotices is the per-day budget of user-visible error replies
	maxErrorNotices = 5
	// errorNoticeGap is the minimum spacing between error replies
	errorNoticeGap = 60 * time.Second

	sendTimeout = 15 * time.Second
)

// ConversationService handles conversation logic: ingress filtering,
// router execution, the debounce buffer and the AI flush
type ConversationService struct {
	router      *usecase.Router
	pipeline    *usecase.AIPipeline
	chatRepo    repo.ChatStateRepo
	configRepo  repo.ConfigRepo
	messageRepo repo.MessageRepo
	debouncer   *Debouncer
	log         *logger.Logger
	now         func() time.Time

	// mu serializes every read-modify-write of chat state
	mu       sync.Mutex
	inflight map[string]bool
}

// Options configures a ConversationService
type Options struct {
	BufferWindow time.Duration
	Scheduler    Scheduler        // nil uses time.AfterFunc
	Now          func() time.Time // nil uses time.Now
}

// NewConversationService creates a new conversation service
func NewConversationService(
	router *usecase.Router,
	pipeline *usecase.AIPipeline,
	chatRepo repo.ChatStateRepo,
	configRepo repo.ConfigRepo,
	messageRepo repo.MessageRepo,
	opts Options,
	log *logger.Logger,
) *ConversationService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &ConversationService{
		router:      router,
		pipeline:    pipeline,
		chatRepo:    chatRepo,
		configRepo:  configRepo,
		messageRepo: messageRepo,
		log:         logger.OrGlobal(log).Component("conversation"),
		now:         now,
		inflight:    make(map[string]bool),
	}
	s.debouncer = NewDebouncer(opts.BufferWindow, opts.Scheduler, s.flush)
	return s
}

// Stop cancels all pending buffers
func (s *ConversationService) Stop() {
	s.debouncer.Stop()
}

// HandleMessage routes one inbound message. Messages that are not routable
// (own, group, broadcast, empty) are dropped without touching state.
func (s *ConversationService) HandleMessage(ctx context.Context, msg *domain.InboundMessage) {
	if !msg.IsRoutable() {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues("routed").Inc()

	chatID := domain.NormalizeChatID(msg.ChatID)
	s.log.Debug("Routing message", zap.String("chat_id", chatID), logger.Text("text", msg.Text))

	replies := s.route(ctx, chatID, msg.Text)
	for _, text := range replies {
		s.send(ctx, chatID, text)
	}
}

// route runs the router under the state lock and returns the replies to send
func (s *ConversationService) route(ctx context.Context, chatID, text string) (replies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverLocked(ctx, chatID, &replies)

	replies, err := s.routeLocked(ctx, chatID, text)
	if err != nil {
		return s.handleErrorLocked(ctx, chatID, err)
	}
	return replies
}

// recoverLocked turns a panic into the internal error path. It must be
// deferred by a caller holding mu.
func (s *ConversationService) recoverLocked(ctx context.Context, chatID string, replies *[]string) {
	if r := recover(); r != nil {
		*replies = s.handleErrorLocked(ctx, chatID, fmt.Errorf("panic: %v", r))
	}
}

func (s *ConversationService) routeLocked(ctx context.Context, chatID, text string) ([]string, error) {
	now := s.now()
	state, err := s.chatRepo.Get(ctx, chatID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat state: %w", err)
	}
	cfg := s.configRepo.Get()

	d := s.router.Route(state, text, cfg, now)
	metrics.RoutesTotal.WithLabelValues(state.Mode.String(), d.Handler).Inc()

	replies := s.applyLocked(ctx, chatID, d, cfg)

	if d.Next.Mode != domain.ModeAIAssist {
		s.debouncer.Cancel(chatID)
	}
	if state.Mode != d.Next.Mode {
		metrics.ModeTransitionsTotal.WithLabelValues(state.Mode.String(), d.Next.Mode.String()).Inc()
		s.log.Info("Mode changed",
			zap.String("chat_id", chatID),
			zap.Stringer("from", state.Mode),
			zap.Stringer("to", d.Next.Mode),
			zap.String("handler", d.Handler))
	}
	if err := s.chatRepo.Save(ctx, d.Next); err != nil {
		return nil, fmt.Errorf("failed to save chat state: %w", err)
	}
	return replies, nil
}

// applyLocked executes the decision's effects in order. A failed config
// edit replaces the remaining replies with the save-failed notice.
func (s *ConversationService) applyLocked(ctx context.Context, chatID string, d *usecase.Decision, cfg *domain.BotConfig) []string {
	var replies []string
	saveFailed := false
	for _, e := range d.Effects {
		switch e.Kind {
		case usecase.EffectReply:
			if !saveFailed && e.Text != "" {
				replies = append(replies, e.Text)
			}
		case usecase.EffectBufferPush:
			s.debouncer.Push(chatID, e.Text)
		case usecase.EffectBufferCancel:
			if s.debouncer.Cancel(chatID) {
				s.log.Debug("Buffer cancelled", zap.String("chat_id", chatID))
			}
		case usecase.EffectConfigUpdate:
			if e.Edit == nil || saveFailed {
				continue
			}
			if err := s.configRepo.Update(ctx, e.Edit.Apply); err != nil {
				s.log.Warn("Admin config edit failed", zap.String("chat_id", chatID), zap.Error(err))
				saveFailed = true
			}
		}
	}
	if saveFailed {
		replies = append(replies, usecase.Format(s.router.Messages().AdminSaveFailed, cfg))
	}
	return replies
}

// flush runs when a chat's debounce window elapses
func (s *ConversationService) flush(chatID, text string) {
	ctx := context.Background()

	req, ok := s.beginFlush(ctx, chatID, text)
	if !ok {
		return
	}
	res := s.runPipeline(ctx, chatID, text, req)
	for _, t := range s.finishFlush(ctx, chatID, text, req.epoch, res) {
		s.send(ctx, chatID, t)
	}
}

type flushRequest struct {
	epoch   uint64
	history []domain.HistoryEntry
	cfg     *domain.BotConfig
}

// beginFlush snapshots the chat and marks its completion in flight
func (s *ConversationService) beginFlush(ctx context.Context, chatID, text string) (req flushRequest, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, found := s.chatRepo.Peek(ctx, chatID)
	if !found || state.Mode != domain.ModeAIAssist {
		return req, false
	}
	if s.inflight[chatID] {
		// One completion per chat: hold the batch for another window
		s.debouncer.Push(chatID, text)
		return req, false
	}
	s.inflight[chatID] = true
	return flushRequest{epoch: state.Epoch, history: state.History, cfg: s.configRepo.Get()}, true
}

// runPipeline calls the AI pipeline outside the lock. A panic yields nil.
func (s *ConversationService) runPipeline(ctx context.Context, chatID, text string, req flushRequest) (res *usecase.PipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("AI pipeline panic", zap.String("chat_id", chatID), zap.Any("panic", r))
			res = nil
		}
	}()
	return s.pipeline.Process(ctx, chatID, text, req.history, req.cfg)
}

func (s *ConversationService) finishFlush(ctx context.Context, chatID, text string, epoch uint64, res *usecase.PipelineResult) (replies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverLocked(ctx, chatID, &replies)

	delete(s.inflight, chatID)
	if res == nil {
		return s.handleErrorLocked(ctx, chatID, fmt.Errorf("ai pipeline failed"))
	}
	reply, err := s.commitLocked(ctx, chatID, epoch, text, res)
	if err != nil {
		return s.handleErrorLocked(ctx, chatID, err)
	}
	if reply == "" {
		return nil
	}
	return []string{reply}
}

// commitLocked applies a pipeline result if the chat is still in the
// AI_ASSIST epoch the call started in. It returns the reply to send.
func (s *ConversationService) commitLocked(ctx context.Context, chatID string, epoch uint64, text string, res *usecase.PipelineResult) (string, error) {
	state, ok := s.chatRepo.Peek(ctx, chatID)
	if !ok || state.Mode != domain.ModeAIAssist || state.Epoch != epoch {
		s.log.Info("Discarding stale AI result",
			zap.String("chat_id", chatID),
			zap.String("reason", res.Reason))
		return "", nil
	}

	now := s.now()
	if res.Accepted {
		confidence := res.Confidence
		state.AppendHistory(
			domain.HistoryEntry{Text: text, Timestamp: now},
			domain.HistoryEntry{IsFromBot: true, Text: res.Reply, Timestamp: now, Confidence: &confidence},
		)
	} else {
		state.SetMode(domain.ModeHumanHandoff)
		metrics.ModeTransitionsTotal.WithLabelValues(domain.ModeAIAssist.String(), domain.ModeHumanHandoff.String()).Inc()
		s.log.Info("AI answer not sent, handing off",
			zap.String("chat_id", chatID),
			zap.String("reason", res.Reason),
			zap.Float64("confidence", res.Confidence),
			zap.Error(res.Err))
	}
	if err := s.chatRepo.Save(ctx, state); err != nil {
		return "", fmt.Errorf("failed to save chat state: %w", err)
	}
	return res.Reply, nil
}

// handleErrorLocked forces HUMAN_HANDOFF and returns the error notice,
// which is throttled to maxErrorNotices per day and errorNoticeGap apart
func (s *ConversationService) handleErrorLocked(ctx context.Context, chatID string, cause error) []string {
	metrics.ErrorsTotal.Inc()
	s.log.Error("Error handling message", zap.String("chat_id", chatID), zap.Error(cause))

	now := s.now()
	state, ok := s.chatRepo.Peek(ctx, chatID)
	if !ok {
		state = domain.NewChatState(chatID, now)
	}

	state.ErrorCount++
	notify := state.ErrorCount <= maxErrorNotices &&
		(state.LastErrorTime.IsZero() || now.Sub(state.LastErrorTime) >= errorNoticeGap)
	if notify {
		state.LastErrorTime = now
	}
	state.SetMode(domain.ModeHumanHandoff)
	s.debouncer.Cancel(chatID)

	if err := s.chatRepo.Save(ctx, state); err != nil {
		s.log.Error("Failed to save chat state after error", zap.String("chat_id", chatID), zap.Error(err))
	}
	if !notify {
		return nil
	}
	return []string{s.errorNotice()}
}

// errorNotice formats the error reply, without the store name if the
// config itself is failing
func (s *ConversationService) errorNotice() (text string) {
	notice := s.router.Messages().ErrorNotice
	defer func() {
		if recover() != nil {
			text = usecase.Format(notice, nil)
		}
	}()
	return usecase.Format(notice, s.configRepo.Get())
}

// send is best-effort: failures are logged and never propagated
func (s *ConversationService) send(ctx context.Context, chatID, text string) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.messageRepo.SendText(ctx, chatID, text); err != nil {
		s.log.Warn("Failed to send reply", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// PendingBuffer reports whether chatID has buffered fragments
func (s *ConversationService) PendingBuffer(chatID string) bool {
	return s.debouncer.Pending(chatID)
}
