package conf

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Business config file handled by the config provider
	ConfigPath string
	StoreName  string

	// Groq (OpenAI-compatible) configuration
	Groq GroqConfig

	// AI pipeline configuration
	AI AIConfig

	// Debounce window for AI_ASSIST messages
	BufferWindow time.Duration

	// Chat admin and panel credentials
	Admin AdminConfig

	// Admin HTTP API
	HTTP HTTPConfig

	// WhatsApp transport
	WhatsApp WhatsAppConfig

	AnalyticsDBPath string
	NATSURL         string

	Tracing TracingConfig

	// Messages configuration (loaded from YAML)
	Messages *MessagesConfig

	LogLevel string
	Env      string
	Debug    bool
}

// GroqConfig contains Groq configuration
type GroqConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AIConfig contains AI pipeline settings
type AIConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
	ContextLength       int
	Timeout             time.Duration
	MaxTokens           int
	Temperature         float64
}

// AdminConfig contains admin credentials
type AdminConfig struct {
	Trigger   string
	Username  string
	Password  string
	JWTSecret string
}

// HTTPConfig contains admin API settings
type HTTPConfig struct {
	Addr              string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// WhatsAppConfig contains transport settings
type WhatsAppConfig struct {
	DBPath string
}

// TracingConfig contains OTLP tracing settings
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	messagesConfig, _ := LoadMessagesConfig(os.Getenv("MESSAGES_CONFIG_PATH"))

	jwtSecret := os.Getenv("ADMIN_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = randomSecret()
	}

	return &Config{
		ConfigPath: getEnv("CONFIG_PATH", "config.json"),
		StoreName:  getEnv("STORE_NAME", "Tienda Demo"),
		Groq: GroqConfig{
			APIKey:  os.Getenv("GROQ_API_KEY"),
			Model:   getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
			BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		},
		AI: AIConfig{
			Enabled:             getEnvBool("AI_ENABLED", false),
			ConfidenceThreshold: getEnvFloat("AI_CONFIDENCE_THRESHOLD", 0.7),
			ContextLength:       getEnvInt("AI_CONTEXT_LENGTH", 5),
			Timeout:             time.Duration(getEnvInt("AI_REQUEST_TIMEOUT", 10000)) * time.Millisecond,
			MaxTokens:           getEnvInt("AI_MAX_TOKENS", 1000),
			Temperature:         getEnvFloat("AI_TEMPERATURE", 0.7),
		},
		BufferWindow: getEnvDuration("BUFFER_WINDOW", 10*time.Second),
		Admin: AdminConfig{
			Trigger:   strings.ToLower(getEnv("ADMIN_TRIGGER", "panel#admin")),
			Username:  getEnv("ADMIN_USER", "admin"),
			Password:  getEnv("ADMIN_PASS", "1234"),
			JWTSecret: jwtSecret,
		},
		HTTP: HTTPConfig{
			Addr:              getEnv("HTTP_ADDR", ":3000"),
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		WhatsApp: WhatsAppConfig{
			DBPath: getEnv("WHATSAPP_DB_PATH", "data/whatsapp.db"),
		},
		AnalyticsDBPath: getEnv("ANALYTICS_DB_PATH", "data/analytics.db"),
		NATSURL:         os.Getenv("NATS_URL"),
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		},
		Messages: messagesConfig,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      os.Getenv("ENV"),
		Debug:    os.Getenv("DEBUG") == "true",
	}
}

// ToPipelineConfig converts to AI pipeline configuration
func (c *Config) ToPipelineConfig() usecase.PipelineConfig {
	cfg := usecase.DefaultPipelineConfig()
	cfg.EnvEnabled = c.AI.Enabled
	if c.AI.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = c.AI.ConfidenceThreshold
	}
	if c.AI.ContextLength > 0 {
		cfg.ContextLength = c.AI.ContextLength
	}
	if c.AI.Timeout > 0 {
		cfg.Timeout = c.AI.Timeout
	}
	if c.AI.MaxTokens > 0 {
		cfg.MaxTokens = c.AI.MaxTokens
	}
	cfg.Temperature = c.AI.Temperature
	return cfg
}

// ToAdminCredentials converts to router admin credentials
func (c *Config) ToAdminCredentials() usecase.AdminCredentials {
	return usecase.AdminCredentials{
		Trigger:  c.Admin.Trigger,
		Username: c.Admin.Username,
		Password: c.Admin.Password,
	}
}

// ToMessages returns the user-facing texts, defaults filled
func (c *Config) ToMessages() usecase.Messages {
	if c.Messages == nil {
		return usecase.DefaultMessages
	}
	return c.Messages.ToMessages()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ConfigPath == "" {
		return &ConfigError{Field: "CONFIG_PATH", Message: "required"}
	}
	if c.AI.ConfidenceThreshold < 0 || c.AI.ConfidenceThreshold > 1 {
		return &ConfigError{Field: "AI_CONFIDENCE_THRESHOLD", Message: "must be between 0 and 1"}
	}
	if c.AI.Timeout <= 0 {
		return &ConfigError{Field: "AI_REQUEST_TIMEOUT", Message: "must be positive"}
	}
	if c.BufferWindow <= 0 {
		return &ConfigError{Field: "BUFFER_WINDOW", Message: "must be positive"}
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return &ConfigError{Field: "ADMIN_USER/ADMIN_PASS", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("10s") or plain milliseconds
func getEnvDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "whatsapp-agent-dev-secret"
	}
	return hex.EncodeToString(b)
}
