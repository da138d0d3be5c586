package domain

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// StatusBroadcastChat is the pseudo-chat carrying status updates
	StatusBroadcastChat = "status@broadcast"

	groupServerSuffix     = "@g.us"
	broadcastServerSuffix = "@broadcast"
)

// InboundMessage represents a message received from the transport
type InboundMessage struct {
	ID          string
	ChatID      string
	SenderID    string
	Text        string
	IsFromMe    bool
	IsGroup     bool
	IsBroadcast bool
	CreateTime  time.Time
}

// IsRoutable reports whether the message should reach the router at all.
// Empty bodies, status/broadcast senders, group chats and own messages are dropped.
func (m *InboundMessage) IsRoutable() bool {
	if m == nil || m.IsFromMe {
		return false
	}
	if strings.TrimSpace(m.Text) == "" {
		return false
	}
	if m.IsGroup || strings.HasSuffix(m.ChatID, groupServerSuffix) {
		return false
	}
	if m.IsBroadcast || m.ChatID == StatusBroadcastChat || strings.HasSuffix(m.ChatID, broadcastServerSuffix) {
		return false
	}
	return true
}

// FoldCommand lower-cases, trims and strips diacritics so fixed keywords
// compare equal regardless of accents ("Menú" == "menu").
func FoldCommand(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(text)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(text))
	}
	return folded
}
