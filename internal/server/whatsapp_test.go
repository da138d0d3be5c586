package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/internal/data"
	"github.com/tiendademo/whatsapp-agent/internal/infra/whatsapp"
	"github.com/tiendademo/whatsapp-agent/internal/service"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

type fakeTransport struct {
	onMessage whatsapp.MessageHandler
	onEvent   whatsapp.EventHandler
	connected bool
	loggedOut bool
}

func (f *fakeTransport) OnMessage(h whatsapp.MessageHandler) { f.onMessage = h }
func (f *fakeTransport) OnEvent(h whatsapp.EventHandler)     { f.onEvent = h }
func (f *fakeTransport) Start(ctx context.Context) error     { <-ctx.Done(); return nil }
func (f *fakeTransport) IsConnected() bool                   { return f.connected }

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.loggedOut = true
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendText(ctx context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type staticConfig struct{ cfg *domain.BotConfig }

func (s staticConfig) Get() *domain.BotConfig {
	return s.cfg.Clone()
}

func (s staticConfig) Save(ctx context.Context, partial map[string]any) error {
	return nil
}

func (s staticConfig) Update(ctx context.Context, fn func(*domain.BotConfig) error) error {
	return nil
}

func (s staticConfig) Reload(ctx context.Context) error {
	return nil
}

func newTestServer(t *testing.T) (*WhatsAppServer, *fakeTransport, *recordingSender) {
	t.Helper()
	transport := &fakeTransport{}
	sender := &recordingSender{}
	router := usecase.NewRouter(usecase.DefaultMessages, usecase.AdminCredentials{Trigger: "panel#admin"})
	pipeline := usecase.NewAIPipeline(nil, nil, usecase.DefaultMessages, usecase.DefaultPipelineConfig(), logger.Nop())
	conv := service.NewConversationService(router, pipeline,
		data.NewChatStateRepo(10),
		staticConfig{cfg: domain.DefaultBotConfig("Tienda Demo")},
		sender,
		service.Options{},
		logger.Nop(),
	)
	return NewWhatsAppServer(transport, conv, logger.Nop()), transport, sender
}

func TestWhatsAppServer_DeduplicatesMessages(t *testing.T) {
	_, transport, sender := newTestServer(t)

	msg := &whatsapp.Message{ID: "ABC", ChatID: "5491100000000@s.whatsapp.net", Text: "1"}
	transport.onMessage(msg)
	transport.onMessage(msg)

	if sender.count() != 1 {
		t.Errorf("Expected duplicate delivery to be ignored, got %d replies", sender.count())
	}

	transport.onMessage(&whatsapp.Message{ID: "DEF", ChatID: "5491100000000@s.whatsapp.net", Text: "1"})
	if sender.count() != 2 {
		t.Errorf("Expected new message routed, got %d replies", sender.count())
	}
}

func TestWhatsAppServer_DropsGroupMessages(t *testing.T) {
	_, transport, sender := newTestServer(t)

	transport.onMessage(&whatsapp.Message{ID: "G1", ChatID: "123-456@g.us", Text: "hola", IsGroup: true})
	if sender.count() != 0 {
		t.Errorf("Expected group message dropped, got %d replies", sender.count())
	}
}

func TestWhatsAppServer_Status(t *testing.T) {
	s, transport, _ := newTestServer(t)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	transport.onEvent(whatsapp.Event{Type: whatsapp.EventQR, QR: "2@abc", Time: at})
	st := s.Status()
	if st.Connected || st.LastQR != "2@abc" || !st.LastQRAt.Equal(at) {
		t.Errorf("Unexpected status after QR: %+v", st)
	}

	transport.connected = true
	transport.onEvent(whatsapp.Event{Type: whatsapp.EventConnected, Time: at})
	st = s.Status()
	if !st.Connected || st.LastQR != "" {
		t.Errorf("Unexpected status after connect: %+v", st)
	}

	transport.connected = false
	transport.onEvent(whatsapp.Event{Type: whatsapp.EventDisconnected, Reason: "connection closed", Time: at})
	if st = s.Status(); st.LastDisconnectReason != "connection closed" {
		t.Errorf("Expected disconnect reason, got %+v", st)
	}
}

func TestWhatsAppServer_Subscribe(t *testing.T) {
	s, transport, _ := newTestServer(t)

	events, cancel := s.Subscribe()
	transport.onEvent(whatsapp.Event{Type: whatsapp.EventConnected})

	select {
	case evt := <-events:
		if evt.Type != whatsapp.EventConnected {
			t.Errorf("Unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected event delivered")
	}

	cancel()
	cancel()
	transport.onEvent(whatsapp.Event{Type: whatsapp.EventConnected})
	if _, ok := <-events; ok {
		t.Error("Expected channel closed after cancel")
	}
}

func TestWhatsAppServer_Logout(t *testing.T) {
	s, transport, _ := newTestServer(t)
	if err := s.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !transport.loggedOut {
		t.Error("Expected transport logout")
	}
}
