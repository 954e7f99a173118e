package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration. It is loaded once in main and passed
// explicitly to constructors.
type Config struct {
	DatabaseURL string
	AutoMigrate bool
	Port        string
	Environment string
	LogLevel    string

	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	ResolverTimeout  time.Duration
	MaxMessageLength int

	DefaultCurrency string
	DefaultVATRate  decimal.Decimal

	WorkflowMaxAttempts int
	WorkflowBaseDelay   time.Duration

	AllowedOrigins []string
	JWTSecret      string
	RateLimit      string

	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAPIBase       string

	TelegramBotToken string
	TelegramAPIBase  string
}

// IsProduction reports whether ENVIRONMENT is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("RESOLVER_TIMEOUT", "15s")
	v.SetDefault("MAX_MESSAGE_LENGTH", 2000)
	v.SetDefault("DEFAULT_CURRENCY", "ZAR")
	v.SetDefault("DEFAULT_VAT_RATE", "0.15")
	v.SetDefault("WORKFLOW_MAX_ATTEMPTS", 3)
	v.SetDefault("WORKFLOW_BASE_DELAY", "500ms")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("RATE_LIMIT", "60-M")
	v.SetDefault("WHATSAPP_TOKEN", "")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_VERIFY_TOKEN", "")
	v.SetDefault("WHATSAPP_API_BASE", "https://graph.facebook.com/v20.0")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_API_BASE", "https://api.telegram.org")
}

// Load reads configuration from the environment, after loading a .env file if
// one is present. Environment variables override .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper builds a Config from v after registering defaults and environment
// binding on it.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:           v.GetString("DATABASE_URL"),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		Port:                  v.GetString("SERVER_PORT"),
		Environment:           strings.ToLower(v.GetString("ENVIRONMENT")),
		LogLevel:              v.GetString("LOG_LEVEL"),
		OpenAIAPIKey:          v.GetString("OPENAI_API_KEY"),
		OpenAIModel:           v.GetString("OPENAI_MODEL"),
		OpenAIBaseURL:         v.GetString("OPENAI_BASE_URL"),
		MaxMessageLength:      v.GetInt("MAX_MESSAGE_LENGTH"),
		DefaultCurrency:       strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
		WorkflowMaxAttempts:   v.GetInt("WORKFLOW_MAX_ATTEMPTS"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		RateLimit:             v.GetString("RATE_LIMIT"),
		WhatsAppToken:         v.GetString("WHATSAPP_TOKEN"),
		WhatsAppPhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppVerifyToken:   v.GetString("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAPIBase:       strings.TrimRight(v.GetString("WHATSAPP_API_BASE"), "/"),
		TelegramBotToken:      v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:       strings.TrimRight(v.GetString("TELEGRAM_API_BASE"), "/"),
	}

	var err error
	if cfg.ResolverTimeout, err = time.ParseDuration(v.GetString("RESOLVER_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("invalid RESOLVER_TIMEOUT: %w", err)
	}
	if cfg.WorkflowBaseDelay, err = time.ParseDuration(v.GetString("WORKFLOW_BASE_DELAY")); err != nil {
		return nil, fmt.Errorf("invalid WORKFLOW_BASE_DELAY: %w", err)
	}
	if cfg.DefaultVATRate, err = decimal.NewFromString(v.GetString("DEFAULT_VAT_RATE")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_VAT_RATE: %w", err)
	}
	if cfg.DefaultVATRate.IsNegative() || cfg.DefaultVATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("DEFAULT_VAT_RATE must be in [0, 1), got %s", cfg.DefaultVATRate)
	}
	if cfg.MaxMessageLength <= 0 {
		return nil, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", cfg.MaxMessageLength)
	}
	if cfg.WorkflowMaxAttempts <= 0 {
		return nil, fmt.Errorf("WORKFLOW_MAX_ATTEMPTS must be positive, got %d", cfg.WorkflowMaxAttempts)
	}

	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg, nil
}
