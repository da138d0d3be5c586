package data

import (
	"context"
	"sync"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

// DefaultChatCapacity bounds the number of tracked chats
const DefaultChatCapacity = 1000

// chatStateRepo implements the ChatState repository in memory
type chatStateRepo struct {
	mu       sync.Mutex
	states   map[string]*domain.ChatState
	capacity int
}

// NewChatStateRepo creates a new in-memory ChatState repository
func NewChatStateRepo(capacity int) repo.ChatStateRepo {
	if capacity <= 0 {
		capacity = DefaultChatCapacity
	}
	return &chatStateRepo{
		states:   make(map[string]*domain.ChatState),
		capacity: capacity,
	}
}

// Get returns the chat's state, creating it if absent
func (r *chatStateRepo) Get(ctx context.Context, chatID string, now time.Time) (*domain.ChatState, error) {
	chatID = domain.NormalizeChatID(chatID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[chatID]; ok {
		s.Touch(now)
		return s.Clone(), nil
	}

	if len(r.states) >= r.capacity {
		r.evictOldestLocked()
	}
	s := domain.NewChatState(chatID, now)
	r.states[chatID] = s
	metrics.ActiveChats.Set(float64(len(r.states)))
	return s.Clone(), nil
}

// Peek returns a snapshot without creating or touching the state
func (r *chatStateRepo) Peek(ctx context.Context, chatID string) (*domain.ChatState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[domain.NormalizeChatID(chatID)]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Save stores the state (create or update)
func (r *chatStateRepo) Save(ctx context.Context, state *domain.ChatState) error {
	if state == nil {
		return nil
	}
	s := state.Clone()
	s.ChatID = domain.NormalizeChatID(s.ChatID)
	if !s.Mode.Valid() {
		s.SetMode(domain.ModeMenu)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[s.ChatID]; !ok && len(r.states) >= r.capacity {
		r.evictOldestLocked()
	}
	r.states[s.ChatID] = s
	metrics.ActiveChats.Set(float64(len(r.states)))
	return nil
}

// Delete removes a chat's state
func (r *chatStateRepo) Delete(ctx context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, domain.NormalizeChatID(chatID))
	metrics.ActiveChats.Set(float64(len(r.states)))
	return nil
}

// Sweep removes states idle since before the cutoff
func (r *chatStateRepo) Sweep(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.states {
		if s.LastMessageTime.Before(before) {
			delete(r.states, id)
			removed++
		}
	}
	metrics.ActiveChats.Set(float64(len(r.states)))
	return removed, nil
}

// Len returns the number of tracked chats
func (r *chatStateRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// evictOldestLocked removes the single least recently active chat
func (r *chatStateRepo) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range r.states {
		if oldestID == "" || s.LastMessageTime.Before(oldest) {
			oldestID = id
			oldest = s.LastMessageTime
		}
	}
	if oldestID != "" {
		delete(r.states, oldestID)
	}
}
