package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// MessagesConfig contains all user-facing texts loaded from YAML
type MessagesConfig struct {
	Replies ReplyMessages   `yaml:"replies"`
	Handoff HandoffMessages `yaml:"handoff"`
	Admin   AdminMessages   `yaml:"admin"`
	Prompt  PromptMessages  `yaml:"prompt"`
}

// ReplyMessages contains router replies
type ReplyMessages struct {
	Welcome       string `yaml:"welcome"`
	AssistWelcome string `yaml:"assist_welcome"`
	HandoffNotice string `yaml:"handoff_notice"`
	Fallback      string `yaml:"fallback"`
	InvalidOption string `yaml:"invalid_option"`
	ErrorNotice   string `yaml:"error_notice"`
}

// HandoffMessages contains the per-intent hand-off replies
type HandoffMessages struct {
	Buying    string `yaml:"buying"`
	Info      string `yaml:"info"`
	FirstTime string `yaml:"first_time"`
	Default   string `yaml:"default"`
}

// AdminMessages contains the chat admin panel texts
type AdminMessages struct {
	Prompt         string `yaml:"prompt"`
	PassPrompt     string `yaml:"pass_prompt"`
	Success        string `yaml:"success"`
	Invalid        string `yaml:"invalid"`
	Logout         string `yaml:"logout"`
	Menu           string `yaml:"menu"`
	SaveFailed     string `yaml:"save_failed"`
	NoCommands     string `yaml:"no_commands"`
	UnknownCommand string `yaml:"unknown_command"`
	CommandsHeader string `yaml:"commands_header"`
	DelUsage       string `yaml:"del_usage"`
	ConfigHeader   string `yaml:"config_header"`
}

// PromptMessages contains the AI system prompt pieces
type PromptMessages struct {
	SystemPrompt        string `yaml:"system_prompt"`
	StrategyBuying      string `yaml:"strategy_buying"`
	StrategyInfo        string `yaml:"strategy_info"`
	StrategyFirstTime   string `yaml:"strategy_first_time"`
	DefaultInstructions string `yaml:"default_instructions"`
	DefaultDescription  string `yaml:"default_description"`
	HistoryHeader       string `yaml:"history_header"`
	CurrentMarker       string `yaml:"current_marker"`
	AnswerMarker        string `yaml:"answer_marker"`
	NoContent           string `yaml:"no_content"`
}

// LoadMessagesConfig loads messages configuration from YAML file
func LoadMessagesConfig(configPath string) (*MessagesConfig, error) {
	log := logger.Global().Component("conf")

	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/messages.yaml",
			"/etc/whatsapp-agent/messages.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "messages.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		log.Info("No messages.yaml found, using defaults")
		return DefaultMessagesConfig(), nil
	}

	log.Info("Loading messages", zap.String("path", loadedPath))

	var config MessagesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return DefaultMessagesConfig(), fmt.Errorf("failed to parse messages.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *MessagesConfig) fillDefaults() {
	*c = FromMessages(c.ToMessages())
}

// ToMessages converts to the usecase message set, defaults filled
func (c *MessagesConfig) ToMessages() usecase.Messages {
	m := usecase.Messages{
		Welcome:       c.Replies.Welcome,
		AssistWelcome: c.Replies.AssistWelcome,
		HandoffNotice: c.Replies.HandoffNotice,
		Fallback:      c.Replies.Fallback,
		InvalidOption: c.Replies.InvalidOption,
		ErrorNotice:   c.Replies.ErrorNotice,

		HandoffBuying:    c.Handoff.Buying,
		HandoffInfo:      c.Handoff.Info,
		HandoffFirstTime: c.Handoff.FirstTime,
		HandoffDefault:   c.Handoff.Default,

		AdminPrompt:       c.Admin.Prompt,
		AdminPassPrompt:   c.Admin.PassPrompt,
		AdminSuccess:      c.Admin.Success,
		AdminInvalid:      c.Admin.Invalid,
		AdminLogout:       c.Admin.Logout,
		AdminMenu:         c.Admin.Menu,
		AdminSaveFailed:   c.Admin.SaveFailed,
		AdminNoCommands:   c.Admin.NoCommands,
		AdminUnknownCmd:   c.Admin.UnknownCommand,
		AdminCommandsHead: c.Admin.CommandsHeader,
		AdminDelUsage:     c.Admin.DelUsage,
		AdminConfigHead:   c.Admin.ConfigHeader,

		SystemPrompt:        c.Prompt.SystemPrompt,
		StrategyBuying:      c.Prompt.StrategyBuying,
		StrategyInfo:        c.Prompt.StrategyInfo,
		StrategyFirstTime:   c.Prompt.StrategyFirstTime,
		DefaultInstructions: c.Prompt.DefaultInstructions,
		DefaultDescription:  c.Prompt.DefaultDescription,
		HistoryHeader:       c.Prompt.HistoryHeader,
		CurrentMarker:       c.Prompt.CurrentMarker,
		AnswerMarker:        c.Prompt.AnswerMarker,
		NoContent:           c.Prompt.NoContent,
	}
	return m.WithDefaults()
}

// FromMessages converts a usecase message set to its YAML form
func FromMessages(m usecase.Messages) MessagesConfig {
	return MessagesConfig{
		Replies: ReplyMessages{
			Welcome:       m.Welcome,
			AssistWelcome: m.AssistWelcome,
			HandoffNotice: m.HandoffNotice,
			Fallback:      m.Fallback,
			InvalidOption: m.InvalidOption,
			ErrorNotice:   m.ErrorNotice,
		},
		Handoff: HandoffMessages{
			Buying:    m.HandoffBuying,
			Info:      m.HandoffInfo,
			FirstTime: m.HandoffFirstTime,
			Default:   m.HandoffDefault,
		},
		Admin: AdminMessages{
			Prompt:         m.AdminPrompt,
			PassPrompt:     m.AdminPassPrompt,
			Success:        m.AdminSuccess,
			Invalid:        m.AdminInvalid,
			Logout:         m.AdminLogout,
			Menu:           m.AdminMenu,
			SaveFailed:     m.AdminSaveFailed,
			NoCommands:     m.AdminNoCommands,
			UnknownCommand: m.AdminUnknownCmd,
			CommandsHeader: m.AdminCommandsHead,
			DelUsage:       m.AdminDelUsage,
			ConfigHeader:   m.AdminConfigHead,
		},
		Prompt: PromptMessages{
			SystemPrompt:        m.SystemPrompt,
			StrategyBuying:      m.StrategyBuying,
			StrategyInfo:        m.StrategyInfo,
			StrategyFirstTime:   m.StrategyFirstTime,
			DefaultInstructions: m.DefaultInstructions,
			DefaultDescription:  m.DefaultDescription,
			HistoryHeader:       m.HistoryHeader,
			CurrentMarker:       m.CurrentMarker,
			AnswerMarker:        m.AnswerMarker,
			NoContent:           m.NoContent,
		},
	}
}

// DefaultMessagesConfig returns the default messages configuration
func DefaultMessagesConfig() *MessagesConfig {
	c := FromMessages(usecase.DefaultMessages)
	return &c
}
