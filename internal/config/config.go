// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the webhook bridge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	HTTP     HTTPConfig    `yaml:"http"`
	Discord  DiscordConfig `yaml:"discord"`
	SES      SESConfig     `yaml:"ses"`
	TLS      TLSConfig     `yaml:"tls"`
	Logging  LoggingConfig `yaml:"logging"`
	Notifier string        `yaml:"notifier"`
}

// HTTPConfig holds the HTTP server configuration, including the basic-auth
// credentials CloudMailin must present on the webhook endpoint.
type HTTPConfig struct {
	Listen   string `yaml:"listen"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DiscordConfig holds the Discord webhook destination.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// SESConfig holds AWS SES v2 configuration for the email-forwarding backend.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
	Recipient       string `yaml:"recipient"`
}

// TLSConfig holds TLS settings for serving the webhook over HTTPS directly.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// AuthEnabled returns true if both basic-auth username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.HTTP.Username != "" && c.HTTP.Password != ""
}

// AuthPartial returns true if exactly one of username and password is set.
// A half-configured pair is a startup error, not an auth-disabled mode.
func (c *Config) AuthPartial() bool {
	return (c.HTTP.Username != "") != (c.HTTP.Password != "")
}

// DiscordConfigured returns true if a Discord webhook URL is set.
func (c *Config) DiscordConfigured() bool {
	return c.Discord.WebhookURL != ""
}

// SESConfigured returns true if the fields required to send via SES are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != "" && c.SES.Recipient != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.HTTP.Listen = ":8080"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("AUTH_USERNAME"); v != "" {
		c.HTTP.Username = v
	}
	if v := os.Getenv("AUTH_PASSWORD"); v != "" {
		c.HTTP.Password = v
	}

	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Discord.WebhookURL = v
	}
	if v := os.Getenv("NOTIFIER"); v != "" {
		c.Notifier = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}
	if v := os.Getenv("SES_RECIPIENT"); v != "" {
		c.SES.Recipient = v
	}

	if v := os.Getenv("TLS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.TLS.Enabled = enabled
		}
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
