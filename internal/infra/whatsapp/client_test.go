package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/proto"

	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{60, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func newTestMessage(chat types.JID, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   chat,
				Sender: chat,
			},
			ID:        "3EB0C0FFEE",
			Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		Message: msg,
	}
}

func TestConvertMessage_Conversation(t *testing.T) {
	chat := types.NewJID("5491100000000", types.DefaultUserServer)
	got := convertMessage(newTestMessage(chat, &waE2E.Message{Conversation: proto.String("hola")}))

	if got.Text != "hola" {
		t.Errorf("Expected text hola, got %q", got.Text)
	}
	if got.ChatID != "5491100000000@s.whatsapp.net" {
		t.Errorf("Unexpected chat id %q", got.ChatID)
	}
	if got.ID != "3EB0C0FFEE" {
		t.Errorf("Unexpected id %q", got.ID)
	}
	if got.IsGroup || got.IsBroadcast || got.IsFromMe {
		t.Errorf("Unexpected flags: %+v", got)
	}
}

func TestConvertMessage_ExtendedText(t *testing.T) {
	chat := types.NewJID("5491100000000", types.DefaultUserServer)
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("con enlace")}}
	if got := convertMessage(newTestMessage(chat, msg)); got.Text != "con enlace" {
		t.Errorf("Expected extended text, got %q", got.Text)
	}
}

func TestConvertMessage_NoText(t *testing.T) {
	chat := types.NewJID("5491100000000", types.DefaultUserServer)
	if got := convertMessage(newTestMessage(chat, nil)); got.Text != "" {
		t.Errorf("Expected empty text, got %q", got.Text)
	}
}

func TestConvertMessage_Broadcast(t *testing.T) {
	if got := convertMessage(newTestMessage(types.StatusBroadcastJID, &waE2E.Message{Conversation: proto.String("x")})); !got.IsBroadcast {
		t.Error("Expected status broadcast flagged")
	}
}

func TestClient_SendTextNotConnected(t *testing.T) {
	c := NewClient(Config{DBPath: "unused.db"}, logger.Nop())
	if err := c.SendText(context.Background(), "5491100000000@s.whatsapp.net", "hola"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if c.IsConnected() {
		t.Error("Expected not connected")
	}
}

func TestClient_HandleEventDispatches(t *testing.T) {
	c := NewClient(Config{}, logger.Nop())

	var got []Event
	var msgs []*Message
	c.OnEvent(func(evt Event) { got = append(got, evt) })
	c.OnMessage(func(msg *Message) { msgs = append(msgs, msg) })

	c.handleEvent(&events.Connected{})
	c.handleEvent(newTestMessage(types.NewJID("1", types.DefaultUserServer), &waE2E.Message{Conversation: proto.String("hola")}))

	if len(got) != 1 || got[0].Type != EventConnected || got[0].Time.IsZero() {
		t.Errorf("Expected one timestamped connected event, got %+v", got)
	}
	if len(msgs) != 1 || msgs[0].Text != "hola" {
		t.Errorf("Expected message dispatched, got %+v", msgs)
	}
}

func TestLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(&logger.Logger{Logger: zap.New(core)}).Sub("Client")

	l.Infof("connected to %s", "server")
	l.Warnf("slow")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "connected to server" {
		t.Errorf("Unexpected message %q", entries[0].Message)
	}
	if entries[0].LoggerName != "Client" {
		t.Errorf("Expected sub-logger name, got %q", entries[0].LoggerName)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("Expected warn level, got %v", entries[1].Level)
	}
}
