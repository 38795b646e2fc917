// ABOUTME: Configuration loading and parsing for the liveconnect connector
// ABOUTME: Supports YAML files with environment variable expansion and capability checks

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete liveconnect configuration.
//
// Every section is optional: a missing section disables the capability that
// depends on it (send API, webhook listener, history search) rather than
// failing startup. Validate only rejects configurations that are internally
// inconsistent.
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	App      AppConfig      `yaml:"app"`
	Listener ListenerConfig `yaml:"listener"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig identifies the platform account and its service directory.
type AccountConfig struct {
	ID         string `yaml:"id"`
	CSDSDomain string `yaml:"csds_domain"`
}

// AppConfig holds the installation credentials used to obtain the app token.
type AppConfig struct {
	InstallationID string `yaml:"installation_id"`
	Secret         string `yaml:"secret"`
	AppID          string `yaml:"app_id"`
}

// ListenerConfig holds webhook listener configuration.
type ListenerConfig struct {
	Port      int             `yaml:"port"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

// TailscaleConfig holds optional tsnet configuration for a publicly
// reachable webhook endpoint (Funnel).
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"`
}

// OAuthConfig holds the OAuth1 credential tuple for the messaging
// interactions (history) API.
type OAuthConfig struct {
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	Token          string `yaml:"token"`
	TokenSecret    string `yaml:"token_secret"`
}

// Complete reports whether all four OAuth1 fields are present.
func (o OAuthConfig) Complete() bool {
	return o.ConsumerKey != "" && o.ConsumerSecret != "" && o.Token != "" && o.TokenSecret != ""
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that the configuration is internally consistent.
// Missing capability sections are allowed; contradictory ones are not.
func (c *Config) Validate() error {
	if c.Listener.Tailscale.Enabled && c.Listener.Tailscale.Hostname == "" {
		return fmt.Errorf("listener.tailscale.hostname is required when tailscale is enabled")
	}
	if c.Listener.Port < 0 || c.Listener.Port > 65535 {
		return fmt.Errorf("listener.port %d out of range", c.Listener.Port)
	}
	return nil
}

// HasDomains reports whether the account section is complete enough to
// resolve the service directory.
func (c *Config) HasDomains() bool {
	return c.Account.ID != "" && c.Account.CSDSDomain != ""
}

// HasSender reports whether the send API can be started (requires the
// service directory plus installation credentials).
func (c *Config) HasSender() bool {
	return c.HasDomains() && c.App.InstallationID != "" && c.App.Secret != ""
}

// HasListener reports whether the webhook listener should be started.
func (c *Config) HasListener() bool {
	return c.Listener.Port != 0 || c.Listener.Tailscale.Enabled
}

// HasHistory reports whether the history search capability is available.
func (c *Config) HasHistory() bool {
	return c.HasDomains() && c.OAuth.Complete()
}
