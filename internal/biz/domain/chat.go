package domain

import (
	"strings"
	"time"
)

// Mode is the router's top-level behavioral state for a chat
type Mode int

const (
	ModeMenu Mode = iota
	ModeAIAssist
	ModeHumanHandoff
)

const (
	// MaxHistoryEntries caps ChatState.History, oldest first out
	MaxHistoryEntries = 20

	// FallbackChatID replaces missing or malformed chat identifiers
	FallbackChatID = "default-chat-id"

	// DailyCounterWindow is how long errorCount accumulates before reset
	DailyCounterWindow = 24 * time.Hour
)

// String returns the wire name of the mode
func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "MENU"
	case ModeAIAssist:
		return "AI_ASSIST"
	case ModeHumanHandoff:
		return "HUMAN_HANDOFF"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the three defined modes
func (m Mode) Valid() bool {
	return m == ModeMenu || m == ModeAIAssist || m == ModeHumanHandoff
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// AdminSession is the admin-auth sub-state layered over Mode
type AdminSession struct {
	AwaitingUsername bool   `json:"awaitingUsername"`
	PendingUsername  string `json:"pendingUsername,omitempty"`
	IsAdmin          bool   `json:"isAdmin"`
}

// HistoryEntry is one turn of AI context
type HistoryEntry struct {
	IsFromBot  bool      `json:"isFromBot"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// ChatState is the per-chat state owned by the chat state store
type ChatState struct {
	ChatID string `json:"chatId"`
	Mode   Mode   `json:"mode"`

	// Epoch increments on every mode transition; completed AI calls
	// started under an older epoch are discarded.
	Epoch uint64 `json:"epoch"`

	Admin           AdminSession   `json:"admin"`
	LastWelcomeDate string         `json:"lastWelcomeDate,omitempty"`
	History         []HistoryEntry `json:"history"`

	ErrorCount      int       `json:"errorCount"`
	LastErrorTime   time.Time `json:"lastErrorTime"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	LastResetTime   time.Time `json:"lastResetTime"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewChatState creates the default state for a chat
func NewChatState(chatID string, now time.Time) *ChatState {
	return &ChatState{
		ChatID:          NormalizeChatID(chatID),
		Mode:            ModeMenu,
		LastMessageTime: now,
		LastResetTime:   now,
		CreatedAt:       now,
	}
}

// NormalizeChatID coerces an empty identifier to FallbackChatID
func NormalizeChatID(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return FallbackChatID
	}
	return chatID
}

// Clone returns a deep copy
func (s *ChatState) Clone() *ChatState {
	if s == nil {
		return nil
	}
	c := *s
	if s.History != nil {
		c.History = make([]HistoryEntry, len(s.History))
		copy(c.History, s.History)
	}
	return &c
}

// SetMode transitions to m, bumping Epoch when the mode actually changes
func (s *ChatState) SetMode(m Mode) {
	if !m.Valid() {
		m = ModeMenu
	}
	if s.Mode != m {
		s.Mode = m
		s.Epoch++
	}
}

// Touch refreshes LastMessageTime and resets daily counters once the window has passed
func (s *ChatState) Touch(now time.Time) {
	s.LastMessageTime = now
	if s.LastResetTime.IsZero() {
		s.LastResetTime = now
		return
	}
	if now.Sub(s.LastResetTime) > DailyCounterWindow {
		s.ErrorCount = 0
		s.LastResetTime = now
	}
}

// WelcomeDue reports whether the daily welcome has not been sent on now's date
func (s *ChatState) WelcomeDue(now time.Time) bool {
	return s.LastWelcomeDate != DateKey(now)
}

// MarkWelcomed records that the welcome was sent on now's date
func (s *ChatState) MarkWelcomed(now time.Time) {
	s.LastWelcomeDate = DateKey(now)
}

// AppendHistory adds entries, evicting the oldest beyond MaxHistoryEntries.
// A new backing array is always allocated so clones never alias.
func (s *ChatState) AppendHistory(entries ...HistoryEntry) {
	merged := make([]HistoryEntry, 0, len(s.History)+len(entries))
	merged = append(merged, s.History...)
	merged = append(merged, entries...)
	if len(merged) > MaxHistoryEntries {
		merged = merged[len(merged)-MaxHistoryEntries:]
	}
	s.History = merged
}

// RecentHistory returns up to n most recent entries
func (s *ChatState) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	return s.History[len(s.History)-n:]
}

// DateKey formats t as a local YYYY-MM-DD day key
func DateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
