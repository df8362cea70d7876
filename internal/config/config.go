// Package config loads runtime settings in layers: built-in defaults, then an
// optional YAML settings file, then environment variables. A .env file in the
// working directory is applied to the environment before the env layer reads
// it, so local development needs no shell exports.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backend names accepted by Config.Store.Backend.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreWordPress = "wordpress"
)

// DefaultSettingsFile is checked when no explicit --config path is given.
const DefaultSettingsFile = "dehum.yaml"

// Config is the full runtime configuration.
type Config struct {
	Provider    string  `yaml:"provider"` // "openai" or "anthropic"
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// RequestsPerMinute throttles engine calls process-wide. 0 disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TurnTimeoutSeconds bounds one whole turn. 0 uses the engine default.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`

	OpenAIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	AnthropicKey  string `yaml:"anthropic_api_key"`

	// CorpusDir is the documentation root for retrieval; empty disables it.
	CorpusDir string `yaml:"corpus_dir"`

	// ProductDB overrides the built-in product catalog; empty uses embedded.
	ProductDB string `yaml:"product_db"`

	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // memory, sqlite, wordpress
	SQLitePath string `yaml:"sqlite_path"`
	SiteURL    string `yaml:"site_url"` // wordpress backend
	APIKey     string `yaml:"api_key"`  // wordpress backend
}

// ServerConfig configures the websocket gateway.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func defaults() *Config {
	return &Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		Store:       StoreConfig{Backend: StoreMemory, SQLitePath: "dehum.db"},
		Server:      ServerConfig{Addr: ":8765"},
	}
}

// Load builds the configuration from defaults, the settings file at path (or
// DefaultSettingsFile when path is empty), and environment variables. A
// missing settings file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := defaults()

	explicit := path != ""
	if path == "" {
		path = DefaultSettingsFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.Provider, "DEHUM_PROVIDER")
	envStr(&c.Model, "DEHUM_MODEL")
	envInt(&c.MaxTokens, "DEHUM_MAX_TOKENS")
	envFloat(&c.Temperature, "DEHUM_TEMPERATURE")
	envInt(&c.RequestsPerMinute, "DEHUM_REQUESTS_PER_MINUTE")
	envInt(&c.TurnTimeoutSeconds, "DEHUM_TURN_TIMEOUT_SECONDS")
	envStr(&c.OpenAIKey, "OPENAI_API_KEY")
	envStr(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	envStr(&c.AnthropicKey, "ANTHROPIC_API_KEY")
	envStr(&c.CorpusDir, "DEHUM_CORPUS_DIR")
	envStr(&c.ProductDB, "DEHUM_PRODUCT_DB")
	envStr(&c.Store.Backend, "DEHUM_STORE")
	envStr(&c.Store.SQLitePath, "DEHUM_SQLITE_PATH")
	envStr(&c.Store.SiteURL, "DEHUM_WP_SITE_URL")
	envStr(&c.Store.APIKey, "DEHUM_WP_API_KEY")
	envStr(&c.Server.Addr, "DEHUM_SERVER_ADDR")
}

func (c *Config) validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	case StoreWordPress:
		if c.Store.SiteURL == "" {
			return fmt.Errorf("wordpress store requires site_url")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicKey
	}
	return c.OpenAIKey
}

// TurnTimeout returns the configured turn deadline, or 0 when unset.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
