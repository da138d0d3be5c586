package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/domain"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// InteractionSubject is the NATS subject for AI pipeline outcomes
const InteractionSubject = "agent.ai.interaction"

// NATSPublisher publishes analytics events to NATS
type NATSPublisher struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSPublisher connects to url. The connection reconnects forever.
func NewNATSPublisher(url string, log *logger.Logger) (*NATSPublisher, error) {
	log = logger.OrGlobal(log).Component("nats")
	conn, err := nats.Connect(url,
		nats.Name("whatsapp-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return &NATSPublisher{conn: conn, log: log}, nil
}

type interactionEvent struct {
	domain.Interaction
	Date string `json:"date"`
}

// PublishInteraction publishes one interaction event
func (p *NATSPublisher) PublishInteraction(ctx context.Context, it domain.Interaction) error {
	data, err := json.Marshal(interactionEvent{Interaction: it, Date: domain.DateKey(it.Timestamp)})
	if err != nil {
		return fmt.Errorf("failed to marshal interaction: %w", err)
	}
	if err := p.conn.Publish(InteractionSubject, data); err != nil {
		return fmt.Errorf("failed to publish interaction: %w", err)
	}
	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
