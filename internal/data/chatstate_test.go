package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
)

func TestChatStateRepo_GetCreatesDefault(t *testing.T) {
	r := NewChatStateRepo(10)
	now := time.Now()

	s, err := r.Get(context.Background(), "5491100000000@s.whatsapp.net", now)
	if err != nil {
		t.Fatal(err)
	}
	if s.Mode != domain.ModeMenu {
		t.Errorf("Expected MENU, got %v", s.Mode)
	}
	if !s.LastMessageTime.Equal(now) {
		t.Error("Expected lastMessageTime set")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 chat, got %d", r.Len())
	}
}

func TestChatStateRepo_FallbackID(t *testing.T) {
	r := NewChatStateRepo(10)
	s, err := r.Get(context.Background(), "   ", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if s.ChatID != domain.FallbackChatID {
		t.Errorf("Expected fallback id, got %q", s.ChatID)
	}
}

func TestChatStateRepo_ReturnsSnapshots(t *testing.T) {
	r := NewChatStateRepo(10)
	ctx := context.Background()
	now := time.Now()

	s, _ := r.Get(ctx, "chat", now)
	s.SetMode(domain.ModeAIAssist)

	again, _ := r.Get(ctx, "chat", now)
	if again.Mode != domain.ModeMenu {
		t.Error("Mutating a snapshot must not affect the store")
	}

	if err := r.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	saved, ok := r.Peek(ctx, "chat")
	if !ok || saved.Mode != domain.ModeAIAssist {
		t.Errorf("Expected saved mode, got %+v", saved)
	}
}

func TestChatStateRepo_EvictsOldestAtCapacity(t *testing.T) {
	r := NewChatStateRepo(3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		if _, err := r.Get(ctx, fmt.Sprintf("chat-%d", i), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	// chat-0 becomes the most recent
	r.Get(ctx, "chat-0", base.Add(10*time.Minute))

	r.Get(ctx, "chat-new", base.Add(11*time.Minute))

	if r.Len() != 3 {
		t.Fatalf("Expected capacity to hold at 3, got %d", r.Len())
	}
	if _, ok := r.Peek(ctx, "chat-1"); ok {
		t.Error("Expected chat-1 (oldest) to be evicted")
	}
	for _, id := range []string{"chat-0", "chat-2", "chat-new"} {
		if _, ok := r.Peek(ctx, id); !ok {
			t.Errorf("Expected %s to remain", id)
		}
	}
}

func TestChatStateRepo_ExistingChatAtCapacityDoesNotEvict(t *testing.T) {
	r := NewChatStateRepo(2)
	ctx := context.Background()
	now := time.Now()

	r.Get(ctx, "a", now)
	r.Get(ctx, "b", now.Add(time.Second))
	r.Get(ctx, "a", now.Add(2*time.Second))

	if r.Len() != 2 {
		t.Errorf("Expected 2 chats, got %d", r.Len())
	}
}

func TestChatStateRepo_Sweep(t *testing.T) {
	r := NewChatStateRepo(10)
	ctx := context.Background()
	now := time.Now()

	r.Get(ctx, "stale", now.Add(-8*24*time.Hour))
	r.Get(ctx, "fresh", now.Add(-time.Hour))

	removed, err := r.Sweep(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, ok := r.Peek(ctx, "stale"); ok {
		t.Error("Expected stale chat removed")
	}
	if _, ok := r.Peek(ctx, "fresh"); !ok {
		t.Error("Expected fresh chat kept")
	}
}

func TestChatStateRepo_DailyErrorReset(t *testing.T) {
	r := NewChatStateRepo(10)
	ctx := context.Background()
	now := time.Now()

	s, _ := r.Get(ctx, "chat", now)
	s.ErrorCount = 5
	r.Save(ctx, s)

	s, _ = r.Get(ctx, "chat", now.Add(time.Hour))
	if s.ErrorCount != 5 {
		t.Errorf("Expected error count kept within the window, got %d", s.ErrorCount)
	}

	s, _ = r.Get(ctx, "chat", now.Add(25*time.Hour))
	if s.ErrorCount != 0 {
		t.Errorf("Expected error count reset after 24h, got %d", s.ErrorCount)
	}
}
