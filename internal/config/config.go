package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Upstream webhook
	ChatWebhookURL    string `env:"CHAT_WEBHOOK_URL"`
	ContactWebhookURL string `env:"CONTACT_WEBHOOK_URL"`
	WebhookSecret     string `env:"WEBHOOK_SECRET"`
	WebhookTimeoutMS  int    `env:"WEBHOOK_TIMEOUT_MS" envDefault:"30000"`

	// Per-IP limits
	ChatRateLimitMax        int `env:"CHAT_RATE_LIMIT_MAX" envDefault:"10"`
	ChatRateLimitWindowS    int `env:"CHAT_RATE_LIMIT_WINDOW_S" envDefault:"60"`
	ContactRateLimitMax     int `env:"CONTACT_RATE_LIMIT_MAX" envDefault:"10"`
	ContactRateLimitWindowS int `env:"CONTACT_RATE_LIMIT_WINDOW_S" envDefault:"3600"`

	// Local persistence for client-session state
	DataDir string `env:"DATA_DIR" envDefault:"data"`

	// chatcli settings
	ChatEndpoint string `env:"CHAT_ENDPOINT" envDefault:"http://localhost:8080/api/chat"`
	ChatLanguage string `env:"CHAT_LANGUAGE" envDefault:"ja"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Validate checks the operator-supplied settings the proxies cannot run
// without. A missing webhook URL or secret is a hard configuration error.
func (c *Config) Validate() error {
	if c.ChatWebhookURL == "" {
		return fmt.Errorf("CHAT_WEBHOOK_URL is required")
	}
	if c.ContactWebhookURL == "" {
		return fmt.Errorf("CONTACT_WEBHOOK_URL is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	return nil
}

// WebhookTimeout returns the upstream deadline as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutMS) * time.Millisecond
}

// ChatRateWindow returns the chat proxy's limiter window.
func (c *Config) ChatRateWindow() time.Duration {
	return time.Duration(c.ChatRateLimitWindowS) * time.Second
}

// ContactRateWindow returns the contact proxy's limiter window.
func (c *Config) ContactRateWindow() time.Duration {
	return time.Duration(c.ContactRateLimitWindowS) * time.Second
}
