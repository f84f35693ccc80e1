// Package config handles Shelfdesk configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./shelfdesk.yaml, ~/.config/shelfdesk/config.yaml, /etc/shelfdesk/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"shelfdesk.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "shelfdesk", "config.yaml"))
	}

	paths = append(paths, "/etc/shelfdesk/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Shelfdesk configuration.
//
// Environment override keys compose from the SHELFDESK prefix and the
// field path: SHELFDESK_LISTEN_PORT, SHELFDESK_MODELS_DEFAULT,
// SHELFDESK_ANTHROPIC_API_KEY, SHELFDESK_AGENT_MAX_ROUNDS,
// SHELFDESK_DATA_DIR, SHELFDESK_LOG_LEVEL. Fields must not carry
// envconfig name tags: a named tag registers an unprefixed alternate
// key, which lets ambient variables like ANTHROPIC_API_KEY override
// file config.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	DataDir   string          `yaml:"data_dir" split_words:"true"`
	LogLevel  string          `yaml:"log_level" split_words:"true"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines which oracle backs the agent.
type ModelsConfig struct {
	// Provider selects the LLM backend: "ollama" or "anthropic".
	Provider string `yaml:"provider"`
	Default  string `yaml:"default"`
	// OllamaURL is the Ollama base URL (default http://localhost:11434).
	OllamaURL string `yaml:"ollama_url" split_words:"true"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key" split_words:"true"`
}

// AgentConfig bounds the decision loop.
type AgentConfig struct {
	// MaxRounds caps dispatch rounds per chat request.
	MaxRounds int `yaml:"max_rounds" split_words:"true"`
	// HistoryLimit is how many prior turns are replayed to the oracle.
	HistoryLimit int `yaml:"history_limit" split_words:"true"`
	// OracleTimeoutSec bounds each oracle query (0 = no per-call deadline).
	OracleTimeoutSec int `yaml:"oracle_timeout_sec" split_words:"true"`
	// ToolTimeoutSec bounds each capability dispatch.
	ToolTimeoutSec int `yaml:"tool_timeout_sec" split_words:"true"`
}

// OracleTimeout returns the per-oracle-call deadline as a duration.
func (a AgentConfig) OracleTimeout() time.Duration {
	return time.Duration(a.OracleTimeoutSec) * time.Second
}

// ToolTimeout returns the per-dispatch deadline as a duration.
func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file, then applies SHELFDESK_*
// environment overrides. Env vars win over file values so that secrets
// (API keys) never have to live on disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables referenced inside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process("shelfdesk", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Provider:  "ollama",
			Default:   "qwen3:4b",
			OllamaURL: "http://localhost:11434",
		},
		Agent: AgentConfig{
			MaxRounds:        10,
			HistoryLimit:     20,
			OracleTimeoutSec: 120,
			ToolTimeoutSec:   30,
		},
		DataDir:  ".",
		LogLevel: "info",
	}
}
