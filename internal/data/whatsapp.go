package data

import (
	"context"

	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

// TextSender is the transport operation the message repository needs
type TextSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// whatsappRepo implements the Message repository on the WhatsApp client
type whatsappRepo struct {
	client TextSender
}

// NewWhatsAppRepo creates a new WhatsApp message repository
func NewWhatsAppRepo(client TextSender) repo.MessageRepo {
	return &whatsappRepo{client: client}
}

// SendText sends a text message
func (r *whatsappRepo) SendText(ctx context.Context, chatID, text string) error {
	if err := r.client.SendText(ctx, chatID, text); err != nil {
		metrics.SendsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	return nil
}
