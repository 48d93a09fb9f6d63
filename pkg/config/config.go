// Package config loads clawcord configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (optionally seeded from a .env file). Environment
// always wins so secrets never need to live in the YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "config.yaml"
	DefaultModel    = "gpt-4o"
	DefaultBaseURL  = "https://api.openai.com/v1/"
	DefaultPrefix   = "!"
	DefaultGreeting = "Hello, World!"
	DefaultWorkers  = 16

	// PathEnv names the variable that overrides DefaultPath.
	PathEnv = "CLAWCORD_CONFIG"
)

// Config is the root configuration passed to every component.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Bot     BotConfig     `yaml:"bot"`
	Log     LogConfig     `yaml:"log"`
	Ops     OpsConfig     `yaml:"ops"`
}

// DiscordConfig holds gateway credentials.
type DiscordConfig struct {
	Token string `yaml:"token" env:"DISCORD_BOT_TOKEN"`
}

// OpenAIConfig configures the completion client.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string        `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT"`
}

// BotConfig configures the event handler.
type BotConfig struct {
	Prefix             string `yaml:"prefix" env:"BOT_PREFIX"`
	Greeting           string `yaml:"greeting" env:"BOT_GREETING"`
	CompletionsEnabled bool   `yaml:"completions_enabled" env:"BOT_COMPLETIONS_ENABLED"`
	SystemPrompt       string `yaml:"system_prompt" env:"BOT_SYSTEM_PROMPT"`
	Workers            int    `yaml:"workers" env:"BOT_WORKERS"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// OpsConfig configures the optional ops HTTP server. An empty Addr disables it.
type OpsConfig struct {
	Addr   string `yaml:"addr" env:"OPS_ADDR"`
	APIKey string `yaml:"api_key" env:"OPS_API_KEY"`
}

// Defaults returns a Config with every optional value populated.
func Defaults() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:   DefaultModel,
			BaseURL: DefaultBaseURL,
		},
		Bot: BotConfig{
			Prefix:   DefaultPrefix,
			Greeting: DefaultGreeting,
			Workers:  DefaultWorkers,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigError is a typed error for configuration problems.
type ConfigError string

func (e ConfigError) Error() string { return string(e) }

const (
	ErrMissingBotToken ConfigError = "DISCORD_BOT_TOKEN is not set: the bot cannot connect without a gateway token"
	ErrEmptyPrefix     ConfigError = "bot prefix cannot be empty"
	ErrInvalidWorkers  ConfigError = "bot workers must be at least 1"
)

// LoadDotEnv seeds the process environment from .env style files.
// Missing files are ignored; variables already set are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Path returns the YAML config path from CLAWCORD_CONFIG or DefaultPath.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p
	}
	return DefaultPath
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks startup preconditions.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return ErrMissingBotToken
	}
	if c.Bot.Prefix == "" {
		return ErrEmptyPrefix
	}
	if c.Bot.Workers < 1 {
		return ErrInvalidWorkers
	}
	return nil
}

// Redacted returns a secret-free view of the configuration for status output.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"discord": map[string]interface{}{
			"has_token": c.Discord.Token != "",
		},
		"openai": map[string]interface{}{
			"has_api_key": c.OpenAI.APIKey != "",
			"model":       c.OpenAI.Model,
			"base_url":    c.OpenAI.BaseURL,
			"timeout":     c.OpenAI.Timeout.String(),
		},
		"bot": map[string]interface{}{
			"prefix":              c.Bot.Prefix,
			"completions_enabled": c.Bot.CompletionsEnabled,
			"workers":             c.Bot.Workers,
		},
	}
}
