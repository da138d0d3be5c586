package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/internal/data"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// Mock implementations

type sentMessage struct {
	chatID string
	text   string
}

type mockMessageRepo struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockMessageRepo) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return m.err
}

func (m *mockMessageRepo) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.text
	}
	return out
}

func (m *mockMessageRepo) last() string {
	t := m.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type mockConfigRepo struct {
	mu        sync.Mutex
	cfg       *domain.BotConfig
	updateErr error
	panicGet  bool
}

func (m *mockConfigRepo) Get() *domain.BotConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicGet {
		panic("config unavailable")
	}
	return m.cfg.Clone()
}

func (m *mockConfigRepo) Save(ctx context.Context, partial map[string]any) error {
	return nil
}

func (m *mockConfigRepo) Update(ctx context.Context, fn func(cfg *domain.BotConfig) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	next := m.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	m.cfg = next
	return nil
}

func (m *mockConfigRepo) Reload(ctx context.Context) error {
	return nil
}

type mockCompletionRepo struct {
	mu       sync.Mutex
	response string
	err      error
	block    bool
	gate     chan struct{} // when set, Complete waits for it to close
	started  chan struct{}
	requests []repo.CompletionRequest
}

func (m *mockCompletionRepo) Available() bool {
	return true
}

func (m *mockCompletionRepo) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.started != nil {
		close(m.started)
	}
	if m.gate != nil {
		<-m.gate
	}
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.response, m.err
}

func (m *mockCompletionRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// failingChatRepo fails Get while fail is set
type failingChatRepo struct {
	repo.ChatStateRepo
	fail bool
}

func (r *failingChatRepo) Get(ctx context.Context, chatID string, now time.Time) (*domain.ChatState, error) {
	if r.fail {
		return nil, errors.New("store unavailable")
	}
	return r.ChatStateRepo.Get(ctx, chatID, now)
}

// Test fixture

const testChat = "5491100000000@s.whatsapp.net"

type fixture struct {
	svc        *ConversationService
	sched      *manualScheduler
	messages   *mockMessageRepo
	config     *mockConfigRepo
	completion *mockCompletionRepo
	chats      repo.ChatStateRepo
	now        time.Time
}

func testConfig() *domain.BotConfig {
	cfg := domain.DefaultBotConfig("Tienda Demo")
	cfg.AI.Enabled = true
	cfg.Content = map[string]any{
		"horario": "Atendemos de lunes a viernes de 9:00 a 18:00.",
		"envio":   "Enviamos a todo el país en 48 horas.",
	}
	return cfg
}

func newFixture(t *testing.T, completion *mockCompletionRepo, chats repo.ChatStateRepo) *fixture {
	t.Helper()
	if chats == nil {
		chats = data.NewChatStateRepo(data.DefaultChatCapacity)
	}
	f := &fixture{
		sched:      &manualScheduler{},
		messages:   &mockMessageRepo{},
		config:     &mockConfigRepo{cfg: testConfig()},
		completion: completion,
		chats:      chats,
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local),
	}

	pc := usecase.DefaultPipelineConfig()
	pc.Timeout = 50 * time.Millisecond
	pipeline := usecase.NewAIPipeline(completion, nil, usecase.DefaultMessages, pc, logger.Nop())
	router := usecase.NewRouter(usecase.DefaultMessages, usecase.AdminCredentials{
		Trigger: "panel#admin", Username: "admin", Password: "1234",
	})

	f.svc = NewConversationService(router, pipeline, chats, f.config, f.messages, Options{
		BufferWindow: 10 * time.Second,
		Scheduler:    f.sched.schedule,
		Now:          func() time.Time { return f.now },
	}, logger.Nop())
	return f
}

func (f *fixture) send(text string) {
	f.svc.HandleMessage(context.Background(), &domain.InboundMessage{
		ID:     "id-" + text,
		ChatID: testChat,
		Text:   text,
	})
}

func (f *fixture) mode(t *testing.T) domain.Mode {
	t.Helper()
	s, ok := f.chats.Peek(context.Background(), testChat)
	if !ok {
		t.Fatal("Expected chat state")
	}
	return s.Mode
}

func TestConversationService_BufferCoalescing(t *testing.T) {
	completion := &mockCompletionRepo{response: "Claro, atendemos de lunes a viernes de 9:00 a 18:00. ¡Te esperamos!"}
	f := newFixture(t, completion, nil)

	f.send("4")
	if f.mode(t) != domain.ModeAIAssist {
		t.Fatalf("Expected AI_ASSIST, got %v", f.mode(t))
	}
	sentBefore := len(f.messages.texts())

	f.send("a")
	f.send("b")
	f.send("c")
	if len(f.messages.texts()) != sentBefore {
		t.Error("Buffered messages must not reply immediately")
	}
	if !f.svc.PendingBuffer(testChat) {
		t.Fatal("Expected pending buffer")
	}

	if n := f.sched.fireActive(); n != 1 {
		t.Fatalf("Expected exactly one live timer, got %d", n)
	}
	if completion.calls() != 1 {
		t.Fatalf("Expected exactly one AI call, got %d", completion.calls())
	}
	if !strings.Contains(completion.requests[0].SystemPrompt, "a\nb\nc") {
		t.Errorf("Expected combined input in prompt, got %q", completion.requests[0].SystemPrompt)
	}

	if f.mode(t) != domain.ModeAIAssist {
		t.Errorf("Accepted answer must keep AI_ASSIST, got %v", f.mode(t))
	}
	s, _ := f.chats.Peek(context.Background(), testChat)
	if len(s.History) != 2 || s.History[0].Text != "a\nb\nc" || !s.History[1].IsFromBot {
		t.Errorf("Expected user and bot turns in history, got %+v", s.History)
	}
	if got := f.messages.last(); !strings.Contains(got, "9:00 a 18:00") {
		t.Errorf("Expected AI reply sent, got %q", got)
	}
}

func TestConversationService_HandoffCancelsBuffer(t *testing.T) {
	completion := &mockCompletionRepo{response: "irrelevante"}
	f := newFixture(t, completion, nil)

	f.send("4")
	f.send("a")
	f.send("asesor")

	f.sched.fireAll()

	if completion.calls() != 0 {
		t.Errorf("Expected zero AI invocations, got %d", completion.calls())
	}
	if f.mode(t) != domain.ModeHumanHandoff {
		t.Errorf("Expected HUMAN_HANDOFF, got %v", f.mode(t))
	}
	if f.svc.PendingBuffer(testChat) {
		t.Error("Expected buffer cleared")
	}
}

func TestConversationService_MenuCancelsBuffer(t *testing.T) {
	completion := &mockCompletionRepo{response: "irrelevante"}
	f := newFixture(t, completion, nil)

	f.send("4")
	f.send("hola")
	f.send("menu")
	f.send("menu")
	f.sched.fireAll()

	if completion.calls() != 0 {
		t.Errorf("Expected zero AI invocations, got %d", completion.calls())
	}
	if f.mode(t) != domain.ModeMenu {
		t.Errorf("Expected MENU, got %v", f.mode(t))
	}
}

func TestConversationService_AITimeoutHandsOff(t *testing.T) {
	completion := &mockCompletionRepo{block: true}
	f := newFixture(t, completion, nil)

	f.send("4")
	f.send("hola, ¿tienen camisetas?")
	f.sched.fireActive()

	if f.mode(t) != domain.ModeHumanHandoff {
		t.Errorf("Expected HUMAN_HANDOFF after timeout, got %v", f.mode(t))
	}
	want := usecase.Format(usecase.DefaultMessages.HandoffFor(usecase.ClassifyIntent("hola, ¿tienen camisetas?")), nil)
	if got := f.messages.last(); got != want {
		t.Errorf("Expected hand-off message %q, got %q", want, got)
	}
}

func TestConversationService_DiscardsStaleResult(t *testing.T) {
	completion := &mockCompletionRepo{
		response: "Atendemos de lunes a viernes de 9:00 a 18:00.",
		gate:     make(chan struct{}),
		started:  make(chan struct{}),
	}
	f := newFixture(t, completion, nil)

	f.send("4")
	f.send("¿horario?")

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.fireActive()
	}()
	<-completion.started

	f.send("menu")
	sentBefore := len(f.messages.texts())
	close(completion.gate)
	<-done

	if f.mode(t) != domain.ModeMenu {
		t.Errorf("Expected MENU to stick, got %v", f.mode(t))
	}
	if len(f.messages.texts()) != sentBefore {
		t.Errorf("Stale AI reply must not be sent, got %v", f.messages.texts()[sentBefore:])
	}
}

func TestConversationService_DropsUnroutable(t *testing.T) {
	f := newFixture(t, &mockCompletionRepo{}, nil)

	inputs := []*domain.InboundMessage{
		{ChatID: "123@g.us", Text: "hola", IsGroup: true},
		{ChatID: domain.StatusBroadcastChat, Text: "hola"},
		{ChatID: testChat, Text: "   "},
		{ChatID: testChat, Text: "hola", IsFromMe: true},
	}
	for _, in := range inputs {
		f.svc.HandleMessage(context.Background(), in)
	}

	if len(f.messages.texts()) != 0 {
		t.Errorf("Expected no replies, got %v", f.messages.texts())
	}
	if f.chats.Len() != 0 {
		t.Errorf("Expected no chat state, got %d", f.chats.Len())
	}
}

func TestConversationService_ErrorThrottle(t *testing.T) {
	chats := &failingChatRepo{ChatStateRepo: data.NewChatStateRepo(10), fail: true}
	f := newFixture(t, &mockCompletionRepo{}, chats)
	notice := usecase.Format(usecase.DefaultMessages.ErrorNotice, testConfig())

	// Two errors 10s apart: only the first notifies
	f.send("hola")
	f.now = f.now.Add(10 * time.Second)
	f.send("hola")
	if got := countText(f.messages.texts(), notice); got != 1 {
		t.Fatalf("Expected 1 notice within the gap, got %d", got)
	}

	// Errors 3 to 8 are spaced out; only those within the daily budget of 5 notify
	for i := 0; i < 6; i++ {
		f.now = f.now.Add(61 * time.Second)
		f.send("hola")
	}
	if got := countText(f.messages.texts(), notice); got != 4 {
		t.Errorf("Expected 4 notices, got %d", got)
	}

	s, ok := chats.Peek(context.Background(), testChat)
	if !ok || s.Mode != domain.ModeHumanHandoff {
		t.Errorf("Expected HUMAN_HANDOFF after errors, got %+v", s)
	}
	if s.ErrorCount != 8 {
		t.Errorf("Expected 8 errors counted, got %d", s.ErrorCount)
	}
}

func TestConversationService_RecoversPanic(t *testing.T) {
	f := newFixture(t, &mockCompletionRepo{}, nil)
	f.send("hola")

	f.config.mu.Lock()
	f.config.panicGet = true
	f.config.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Panic escaped the service: %v", r)
		}
	}()
	f.send("algo")

	if got, want := f.messages.last(), usecase.Format(usecase.DefaultMessages.ErrorNotice, nil); got != want {
		t.Errorf("Expected error notice %q, got %q", want, got)
	}
	if f.mode(t) != domain.ModeHumanHandoff {
		t.Errorf("Expected HUMAN_HANDOFF after panic, got %v", f.mode(t))
	}
}

func TestConversationService_AdminSaveFailure(t *testing.T) {
	f := newFixture(t, &mockCompletionRepo{}, nil)
	f.config.updateErr = errors.New("disk full")

	f.send("panel#admin")
	f.send("user admin")
	f.send("pass 1234")
	f.send("nombre: Otra Tienda")

	if got := f.messages.last(); got != usecase.DefaultMessages.AdminSaveFailed {
		t.Errorf("Expected save-failed notice, got %q", got)
	}
	if f.config.cfg.StoreName != "Tienda Demo" {
		t.Error("Config must be unchanged")
	}
}

func TestConversationService_AdminEditApplied(t *testing.T) {
	f := newFixture(t, &mockCompletionRepo{}, nil)

	f.send("panel#admin")
	f.send("user admin")
	f.send("pass 1234")
	f.send("horario: Lunes a sábado 10 a 20")

	if got := f.config.cfg.ContentString("horario"); got != "Lunes a sábado 10 a 20" {
		t.Errorf("Expected section updated, got %q", got)
	}
}

func TestConversationService_SendFailureTolerated(t *testing.T) {
	f := newFixture(t, &mockCompletionRepo{}, nil)
	f.messages.err = errors.New("socket closed")

	f.send("hola")
	f.send("4")

	if f.mode(t) != domain.ModeAIAssist {
		t.Errorf("Expected routing to continue after send failures, got %v", f.mode(t))
	}
}

func countText(texts []string, want string) int {
	n := 0
	for _, t := range texts {
		if t == want {
			n++
		}
	}
	return n
}
