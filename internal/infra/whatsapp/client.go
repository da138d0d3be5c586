package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	// Registers the "sqlite" driver for the device store
	_ "modernc.org/sqlite"

	"github.com/tiendademo/whatsapp-agent/pkg/logger"
	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

const (
	// DefaultMaxReconnectAttempts bounds one disconnect episode
	DefaultMaxReconnectAttempts = 5

	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// ErrNotConnected is returned by SendText while the socket is down
var ErrNotConnected = errors.New("whatsapp client not connected")

// Message represents a received WhatsApp message
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Text        string // conversation or extended text body
	IsFromMe    bool
	IsGroup     bool
	IsBroadcast bool
	Timestamp   time.Time
}

// EventType is the kind of a connection lifecycle event
type EventType string

const (
	EventQR           EventType = "qr"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventLoggedOut    EventType = "logged_out"
)

// Event is a connection lifecycle notification
type Event struct {
	Type   EventType `json:"type"`
	QR     string    `json:"qr,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// EventHandler is the callback for lifecycle events
type EventHandler func(evt Event)

// Config configures the client
type Config struct {
	DBPath               string
	MaxReconnectAttempts int
	QROutput             io.Writer // nil disables terminal QR rendering
}

// Client wraps a whatsmeow client with QR pairing, reconnect backoff and
// rate-limited sends
type Client struct {
	cfg     Config
	log     *logger.Logger
	waLog   waLog.Logger
	limiter *rate.Limiter

	onMessage MessageHandler
	onEvent   EventHandler

	mu           sync.RWMutex
	container    *sqlstore.Container
	wa           *whatsmeow.Client
	ctx          context.Context
	reconnecting bool
}

// NewClient creates a new WhatsApp client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	log = logger.OrGlobal(log).Component("whatsapp")
	return &Client{
		cfg:     cfg,
		log:     log,
		waLog:   NewLogger(log),
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
		ctx:     context.Background(),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnEvent sets the lifecycle event handler
func (c *Client) OnEvent(handler EventHandler) {
	c.onEvent = handler
}

// Start opens the device store, connects (pairing by QR when no device
// is linked) and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	if dir := filepath.Dir(c.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create device store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", c.cfg.DBPath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, c.waLog.Sub("Database"))
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}
	defer container.Close()

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}

	c.mu.Lock()
	c.ctx = ctx
	c.container = container
	c.mu.Unlock()

	if err := c.connect(ctx, c.newWAClient(device)); err != nil {
		return err
	}

	<-ctx.Done()
	c.log.Info("Disconnecting")
	if wa := c.current(); wa != nil {
		wa.Disconnect()
	}
	metrics.TransportConnected.Set(0)
	return nil
}

func (c *Client) newWAClient(device *store.Device) *whatsmeow.Client {
	wa := whatsmeow.NewClient(device, c.waLog.Sub("Client"))
	wa.EnableAutoReconnect = false
	wa.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.wa = wa
	c.mu.Unlock()
	return wa
}

func (c *Client) connect(ctx context.Context, wa *whatsmeow.Client) error {
	if wa.Store.ID != nil {
		c.log.Info("Connecting with stored device", zap.String("jid", wa.Store.ID.String()))
		if err := wa.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.log.Info("No linked device, waiting for QR pairing")
	go c.consumeQR(qrChan)
	return nil
}

func (c *Client) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if c.cfg.QROutput != nil {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, c.cfg.QROutput)
			}
			c.emit(Event{Type: EventQR, QR: item.Code})
		case "success":
			c.log.Info("QR pairing succeeded")
		case "timeout":
			c.log.Warn("QR pairing timed out")
			c.emit(Event{Type: EventDisconnected, Reason: "qr timeout"})
		case "error":
			c.log.Warn("QR pairing failed", zap.Error(item.Error))
		}
	}
}

func (c *Client) current() *whatsmeow.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wa
}

// IsConnected reports whether the socket is up
func (c *Client) IsConnected() bool {
	wa := c.current()
	return wa != nil && wa.IsConnected()
}

// SendText sends a plain text message to chatID
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	wa := c.current()
	if wa == nil || !wa.IsConnected() {
		return ErrNotConnected
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Logout unlinks the device and starts a fresh QR pairing
func (c *Client) Logout(ctx context.Context) error {
	wa := c.current()
	if wa == nil {
		return ErrNotConnected
	}
	if err := wa.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	// LoggedOut is not emitted for a local logout
	c.handleLoggedOut("logout requested")
	return nil
}

// handleEvent runs on whatsmeow's event goroutine, in event order
func (c *Client) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if c.onMessage != nil {
			c.onMessage(convertMessage(v))
		}
	case *events.Connected:
		metrics.TransportConnected.Set(1)
		c.log.Info("Connected")
		c.emit(Event{Type: EventConnected})
	case *events.Disconnected:
		metrics.TransportConnected.Set(0)
		c.log.Warn("Disconnected")
		c.emit(Event{Type: EventDisconnected, Reason: "connection closed"})
		go c.reconnect()
	case *events.StreamReplaced:
		metrics.TransportConnected.Set(0)
		c.log.Warn("Stream replaced by another client")
		c.emit(Event{Type: EventDisconnected, Reason: "stream replaced"})
	case *events.LoggedOut:
		c.handleLoggedOut(fmt.Sprintf("%v", v.Reason))
	}
}

func (c *Client) handleLoggedOut(reason string) {
	metrics.TransportConnected.Set(0)
	c.log.Warn("Logged out", zap.String("reason", reason))
	c.emit(Event{Type: EventLoggedOut, Reason: reason})
	go c.relink()
}

// relink replaces the client with a fresh device awaiting QR pairing
func (c *Client) relink() {
	c.mu.RLock()
	ctx, container := c.ctx, c.container
	c.mu.RUnlock()
	if container == nil || ctx.Err() != nil {
		return
	}
	if old := c.current(); old != nil {
		old.Disconnect()
	}
	wa := c.newWAClient(container.NewDevice())
	if err := c.connect(ctx, wa); err != nil {
		c.log.Error("Failed to start new pairing", zap.Error(err))
	}
}

// reconnect retries Connect with exponential backoff, once per episode
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	ctx := c.ctx
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for attempt := 0; attempt < c.cfg.MaxReconnectAttempts; attempt++ {
		delay := Backoff(attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		wa := c.current()
		if wa == nil {
			return
		}
		if wa.IsConnected() {
			return
		}
		if err := wa.Connect(); err != nil {
			c.log.Warn("Reconnect failed",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
			continue
		}
		c.log.Info("Reconnected", zap.Int("attempt", attempt+1))
		return
	}
	c.log.Error("Giving up reconnecting", zap.Int("attempts", c.cfg.MaxReconnectAttempts))
	c.emit(Event{Type: EventDisconnected, Reason: "reconnect attempts exhausted"})
}

func (c *Client) emit(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	if c.onEvent != nil {
		c.onEvent(evt)
	}
}

// Backoff returns the delay before reconnect attempt n (0-based): 1s·2^n capped at 30s
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return reconnectMaxDelay
	}
	d := reconnectBaseDelay << attempt
	if d > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return d
}

// convertMessage extracts the fields the agent needs from a whatsmeow event
func convertMessage(evt *events.Message) *Message {
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	info := evt.Info
	return &Message{
		ID:          info.ID,
		ChatID:      info.Chat.String(),
		SenderID:    info.Sender.String(),
		Text:        text,
		IsFromMe:    info.IsFromMe,
		IsGroup:     info.IsGroup,
		IsBroadcast: info.Chat.Server == types.BroadcastServer || info.IsIncomingBroadcast(),
		Timestamp:   info.Timestamp,
	}
}
