package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-assistant/internal/config"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := config.FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 15*time.Second, cfg.ResolverTimeout)
	assert.Equal(t, 2000, cfg.MaxMessageLength)
	assert.Equal(t, "ZAR", cfg.DefaultCurrency)
	assert.Equal(t, "0.15", cfg.DefaultVATRate.String())
	assert.Equal(t, 3, cfg.WorkflowMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.WorkflowBaseDelay)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestFromViper_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WORKFLOW_BASE_DELAY", "2s")
	t.Setenv("TELEGRAM_API_BASE", "http://localhost:9999/")

	cfg, err := config.FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.WorkflowBaseDelay)
	assert.Equal(t, "http://localhost:9999", cfg.TelegramAPIBase)
}

func TestFromViper_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"DEFAULT_VAT_RATE":      "1.5",
		"RESOLVER_TIMEOUT":      "soon",
		"MAX_MESSAGE_LENGTH":    "0",
		"WORKFLOW_MAX_ATTEMPTS": "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.FromViper(viper.New())
			assert.Error(t, err)
		})
	}
}
