// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port                 string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE,default=512" validate:"gt=0"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=5" validate:"gt=0"`
	RateLimitRefill      time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
	SendBufferSize       int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	HubQueueSize         int           `env:"HUB_QUEUE_SIZE,default=256" validate:"gt=0"`
	RejectDuplicateNames bool          `env:"REJECT_DUPLICATE_NAMES,default=false"`
	VerifyChatter        bool          `env:"VERIFY_CHATTER,default=false"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

var validate = validator.New()

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:            ":8080",
		AllowedOrigins:  "http://localhost:8080",
		MaxMessageSize:  512,
		RateLimitBurst:  5,
		RateLimitRefill: time.Second,
		SendBufferSize:  256,
		HubQueueSize:    256,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "INFO",
	}
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to their defaults; set but invalid values are an error.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
