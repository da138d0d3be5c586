package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/internal/infra/whatsapp"
	"github.com/tiendademo/whatsapp-agent/internal/service"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// seenTTL is how long message IDs are remembered for deduplication
const seenTTL = 10 * time.Minute

// Transport is the WhatsApp client surface the server drives
type Transport interface {
	OnMessage(handler whatsapp.MessageHandler)
	OnEvent(handler whatsapp.EventHandler)
	Start(ctx context.Context) error
	Logout(ctx context.Context) error
	IsConnected() bool
}

// Status is a snapshot of the transport connection
type Status struct {
	Connected            bool      `json:"connected"`
	LastQR               string    `json:"lastQR,omitempty"`
	LastQRAt             time.Time `json:"lastQRAt,omitempty"`
	LastDisconnectReason string    `json:"lastDisconnectReason,omitempty"`
}

// WhatsAppServer binds transport events to the conversation service
type WhatsAppServer struct {
	transport Transport
	convSvc   *service.ConversationService
	log       *logger.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp

	statusMu sync.RWMutex
	status   Status

	subsMu sync.Mutex
	subs   map[chan whatsapp.Event]struct{}
}

// NewWhatsAppServer creates a new WhatsApp server
func NewWhatsAppServer(transport Transport, convSvc *service.ConversationService, log *logger.Logger) *WhatsAppServer {
	s := &WhatsAppServer{
		transport: transport,
		convSvc:   convSvc,
		log:       logger.OrGlobal(log).Component("server"),
		seenMsgs:  make(map[string]time.Time),
		subs:      make(map[chan whatsapp.Event]struct{}),
	}
	transport.OnMessage(s.handleMessage)
	transport.OnEvent(s.handleEvent)
	return s
}

// Start runs the transport until ctx is done
func (s *WhatsAppServer) Start(ctx context.Context) error {
	s.log.Info("Starting WhatsApp transport")
	err := s.transport.Start(ctx)
	s.convSvc.Stop()
	return err
}

// Logout unlinks the WhatsApp device
func (s *WhatsAppServer) Logout(ctx context.Context) error {
	return s.transport.Logout(ctx)
}

// Status returns the connection snapshot
func (s *WhatsAppServer) Status() Status {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()
	st.Connected = s.transport.IsConnected()
	return st
}

// Subscribe returns a channel receiving lifecycle events and a cancel
// function. Slow subscribers miss events rather than block the transport.
func (s *WhatsAppServer) Subscribe() (<-chan whatsapp.Event, func()) {
	ch := make(chan whatsapp.Event, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

// handleMessage handles WhatsApp messages
func (s *WhatsAppServer) handleMessage(msg *whatsapp.Message) {
	if msg == nil {
		return
	}
	if msg.ID != "" {
		if s.isMessageSeen(msg.ID) {
			s.log.Debug("Duplicate message ignored", zap.String("msg_id", msg.ID))
			return
		}
		s.markMessageSeen(msg.ID)
	}

	s.convSvc.HandleMessage(context.Background(), &domain.InboundMessage{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Text:        msg.Text,
		IsFromMe:    msg.IsFromMe,
		IsGroup:     msg.IsGroup,
		IsBroadcast: msg.IsBroadcast,
		CreateTime:  msg.Timestamp,
	})
}

// handleEvent records lifecycle events and fans them out to subscribers
func (s *WhatsAppServer) handleEvent(evt whatsapp.Event) {
	s.statusMu.Lock()
	switch evt.Type {
	case whatsapp.EventQR:
		s.status.LastQR = evt.QR
		s.status.LastQRAt = evt.Time
	case whatsapp.EventConnected:
		s.status.LastQR = ""
		s.status.LastDisconnectReason = ""
	case whatsapp.EventDisconnected, whatsapp.EventLoggedOut:
		s.status.LastDisconnectReason = evt.Reason
	}
	s.statusMu.Unlock()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// isMessageSeen checks if a message has been processed
func (s *WhatsAppServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen marks a message as processed and prunes expired IDs
func (s *WhatsAppServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	now := time.Now()
	s.seenMsgs[msgID] = now

	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
