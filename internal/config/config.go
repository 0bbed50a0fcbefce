// Package config handles Hearthside configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/hearthside/config.yaml, /etc/hearthside/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hearthside", "config.yaml"))
	}

	paths = append(paths, "/etc/hearthside/config.yaml")
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

// Config holds all Hearthside configuration.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Selection     SelectionConfig     `yaml:"selection"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Snapshots     SnapshotsConfig     `yaml:"snapshots"`
	Conversations ConversationsConfig `yaml:"conversations"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	DataDir       string              `yaml:"data_dir"`
	Language      string              `yaml:"language"`
	LogLevel      string              `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// HomeAssistantConfig defines HA connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// ConfigDir is the Home Assistant configuration directory for file
	// tools (read_config_file etc). File tools are disabled when empty.
	ConfigDir string `yaml:"config_dir"`
}

// ProvidersConfig holds per-provider backend settings. A provider is
// available when its section carries enough to build a client.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Google    GoogleConfig    `yaml:"google"`
	Ollama    OllamaConfig    `yaml:"ollama"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig defines settings for OpenAI or any OpenAI-compatible
// endpoint (set base_url for compatible gateways).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GoogleConfig defines Google Gemini API settings.
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig defines local Ollama settings.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
	// SupportsTools marks the configured model as capable of native
	// tool calls. When false, the simulated tool protocol is used.
	SupportsTools bool `yaml:"supports_tools"`
}

// SelectionConfig defines the startup provider/model selection. The
// runtime selection is persisted in the conversation store and wins
// over this section after the first change.
type SelectionConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// OrchestratorConfig tunes the tool-calling loop.
type OrchestratorConfig struct {
	// MaxRounds caps model/tool round trips per request (default 10).
	MaxRounds int `yaml:"max_rounds"`
	// RequestTimeoutSec bounds a single provider call (default 90).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	// ReadOnly rejects all write tools for every session.
	ReadOnly bool `yaml:"read_only"`
}

// SnapshotsConfig tunes the config-file snapshot store.
type SnapshotsConfig struct {
	Dir        string `yaml:"dir"`          // defaults to <data_dir>/snapshots
	MaxPerFile int    `yaml:"max_per_file"` // default 10
}

// ConversationsConfig tunes conversation persistence.
type ConversationsConfig struct {
	// MaxStored is the global conversation cap; oldest are evicted
	// past it (default 200).
	MaxStored int `yaml:"max_stored"`
}

// MQTTConfig defines the optional assistant-activity publisher.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
}

// LoadEnv loads a .env file from the working directory when present.
// Missing files are not an error; variables already set win.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 8098},
		Language: "en",
		Orchestrator: OrchestratorConfig{
			MaxRounds:         10,
			RequestTimeoutSec: 90,
		},
		Snapshots:     SnapshotsConfig{MaxPerFile: 10},
		Conversations: ConversationsConfig{MaxStored: 200},
		MQTT:          MQTTConfig{DeviceName: "hearthside"},
	}
}
