package data

import (
	"errors"

	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/internal/infra/groq"
	"github.com/tiendademo/whatsapp-agent/internal/infra/whatsapp"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

var errGroqNotConfigured = errors.New("groq client not configured")

// Repositories contains all repositories
type Repositories struct {
	Message    repo.MessageRepo
	ChatState  repo.ChatStateRepo
	Config     *ConfigRepo
	Completion repo.CompletionRepo
	Analytics  *AnalyticsRepo
}

// Options configures NewRepositories
type Options struct {
	ConfigPath      string
	StoreName       string
	AnalyticsDBPath string
	ChatCapacity    int
	Publisher       InteractionPublisher
}

// NewRepositories creates all repositories.
// groqClient may be nil, in which case the AI pipeline reports unavailable.
func NewRepositories(
	waClient *whatsapp.Client,
	groqClient *groq.Client,
	opts Options,
	log *logger.Logger,
) (*Repositories, error) {
	configRepo, err := NewConfigRepo(opts.ConfigPath, opts.StoreName, log)
	if err != nil {
		return nil, err
	}

	analyticsRepo, err := NewAnalyticsRepo(opts.AnalyticsDBPath, opts.Publisher, log)
	if err != nil {
		return nil, err
	}

	capacity := opts.ChatCapacity
	if capacity <= 0 {
		capacity = DefaultChatCapacity
	}

	return &Repositories{
		Message:    NewWhatsAppRepo(waClient),
		ChatState:  NewChatStateRepo(capacity),
		Config:     configRepo,
		Completion: NewGroqRepo(groqClient),
		Analytics:  analyticsRepo,
	}, nil
}

// Close releases resources held by the repositories
func (r *Repositories) Close() error {
	if r.Analytics != nil {
		return r.Analytics.Close()
	}
	return nil
}
