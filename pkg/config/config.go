// Package config loads the bot configuration from a YAML file with
// environment-variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kawanbot/kawanbot/pkg/persona"
)

// Config represents the application configuration
type Config struct {
	// Transport
	TelegramToken string `yaml:"telegram_token"`

	// LLM
	Provider    string  `yaml:"provider"` // gemini, openai
	GeminiKey   string  `yaml:"gemini_key"`
	OpenAIKey   string  `yaml:"openai_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Persona
	DefaultMood string `yaml:"default_mood"`

	// Store
	Store StoreConfig `yaml:"store"`

	// Runtime
	Runtime RuntimeConfig `yaml:"runtime"`
}

// StoreConfig selects and configures the session store backend
type StoreConfig struct {
	Backend string `yaml:"backend"` // file, redis, firestore

	// file
	Dir string `yaml:"dir"`

	// redis
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	// firestore
	FirestoreProject     string `yaml:"firestore_project"`
	FirestoreCredentials string `yaml:"firestore_credentials"`
	FirestoreCollection  string `yaml:"firestore_collection"`
}

// RuntimeConfig holds runtime tuning
type RuntimeConfig struct {
	LLMTimeout       time.Duration `yaml:"llm_timeout"`
	MoodNoticePause  time.Duration `yaml:"mood_notice_pause"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	RatePerChat      float64       `yaml:"rate_per_chat"`
	RateBurst        int           `yaml:"rate_burst"`
	HTTPPort         int           `yaml:"http_port"`
}

// LoadConfig loads configuration from a YAML file. An empty path
// yields a config built purely from defaults and environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Apply defaults
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.9
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.DefaultMood == "" {
		cfg.DefaultMood = string(persona.Default)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.FirestoreCollection == "" {
		cfg.Store.FirestoreCollection = "sessions"
	}
	if cfg.Runtime.LLMTimeout == 0 {
		cfg.Runtime.LLMTimeout = 30 * time.Second
	}
	if cfg.Runtime.MoodNoticePause == 0 {
		cfg.Runtime.MoodNoticePause = 1500 * time.Millisecond
	}
	if cfg.Runtime.AutosaveInterval == 0 {
		cfg.Runtime.AutosaveInterval = 5 * time.Minute
	}
	if cfg.Runtime.RatePerChat == 0 {
		cfg.Runtime.RatePerChat = 1
	}
	if cfg.Runtime.RateBurst == 0 {
		cfg.Runtime.RateBurst = 3
	}
	if cfg.Runtime.HTTPPort == 0 {
		cfg.Runtime.HTTPPort = 8080
	}

	// Load secrets from environment if not in config
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Store.FirestoreProject == "" {
		cfg.Store.FirestoreProject = os.Getenv("GCP_PROJECT")
	}
	if cfg.Store.FirestoreCredentials == "" {
		cfg.Store.FirestoreCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	return &cfg, nil
}

// ProviderKey returns the API key for the selected provider.
func (c *Config) ProviderKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIKey
	default:
		return c.GeminiKey
	}
}

// Validate checks if the configuration is usable; the process refuses
// to start on any error here.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("telegram_token is required (or set TELEGRAM_TOKEN)")
	}

	switch c.Provider {
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("gemini_key is required (or set GEMINI_API_KEY)")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("openai_key is required (or set OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if !persona.Known(c.DefaultMood) {
		return fmt.Errorf("unknown default_mood %q", c.DefaultMood)
	}

	switch c.Store.Backend {
	case "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	case "firestore":
		if c.Store.FirestoreProject == "" {
			return fmt.Errorf("store.firestore_project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	return nil
}
