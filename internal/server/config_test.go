package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnv_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := NewConfigFromEnv()

	req.NoError(err)
	req.Equal(NewConfig(), cfg)
}

func TestNewConfigFromEnv_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "500ms")
	t.Setenv("SEND_BUFFER_SIZE", "16")
	t.Setenv("HUB_QUEUE_SIZE", "32")
	t.Setenv("REJECT_DUPLICATE_NAMES", "true")
	t.Setenv("VERIFY_CHATTER", "true")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := NewConfigFromEnv()

	req.NoError(err)
	req.Equal(":9090", cfg.Port)
	req.Equal([]string{"https://chat.example.com", "http://localhost:3000"}, cfg.Origins())
	req.Equal(2048, cfg.MaxMessageSize)
	req.Equal(10, cfg.RateLimitBurst)
	req.Equal(500*time.Millisecond, cfg.RateLimitRefill)
	req.Equal(16, cfg.SendBufferSize)
	req.Equal(32, cfg.HubQueueSize)
	req.True(cfg.RejectDuplicateNames)
	req.True(cfg.VerifyChatter)
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
	req.Equal("DEBUG", cfg.LogLevel)
}

func TestNewConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative message size", key: "MAX_MESSAGE_SIZE", value: "-1"},
		{name: "zero burst", key: "RATE_LIMIT_BURST", value: "0"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "LOUD"},
		{name: "not a number", key: "SEND_BUFFER_SIZE", value: "many"},
		{name: "not a duration", key: "SHUTDOWN_TIMEOUT", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := NewConfigFromEnv()

			require.Error(t, err)
			require.Nil(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	cfg := NewConfig()
	req.NoError(cfg.Validate())

	cfg.Port = ""
	req.Error(cfg.Validate())
}

func TestConfig_Origins(t *testing.T) {
	req := require.New(t)

	req.Nil(Config{AllowedOrigins: "  "}.Origins())
	req.Equal([]string{"*"}, Config{AllowedOrigins: "*"}.Origins())
	req.Equal([]string{"http://a.test", "http://b.test"}, Config{AllowedOrigins: "http://a.test,http://b.test"}.Origins())
}
