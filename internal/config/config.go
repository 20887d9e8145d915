package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete codeask configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	API     APIConfig     `json:"api" mapstructure:"api"`
	Index   IndexConfig   `json:"index" mapstructure:"index"`
	Limits  LimitsConfig  `json:"limits" mapstructure:"limits"`
	Batch   BatchConfig   `json:"batch" mapstructure:"batch"`
	Context ContextConfig `json:"context" mapstructure:"context"`
	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	Watcher WatcherConfig `json:"watcher" mapstructure:"watcher"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// APIConfig contains settings for the upstream LLM endpoint
type APIConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"baseUrl"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"maxTokens" mapstructure:"maxTokens"`
	// KeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	KeyEnv    string `json:"keyEnv" mapstructure:"keyEnv"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// IndexConfig contains indexing configuration
type IndexConfig struct {
	Extensions       []string `json:"extensions" mapstructure:"extensions"`
	Excludes         []string `json:"excludes" mapstructure:"excludes"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	Concurrency      int      `json:"concurrency" mapstructure:"concurrency"`
}

// LimitsConfig contains call admission ceilings. Zero values fall back
// to the per-model limits table.
type LimitsConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute" mapstructure:"requestsPerMinute"`
	TokensPerMinute   int `json:"tokensPerMinute" mapstructure:"tokensPerMinute"`
	TokensPerDay      int `json:"tokensPerDay" mapstructure:"tokensPerDay"`
}

// BatchConfig contains query batching configuration
type BatchConfig struct {
	MaxSize    int `json:"maxSize" mapstructure:"maxSize"`
	IntervalMs int `json:"intervalMs" mapstructure:"intervalMs"`
}

// ContextConfig bounds prompt assembly
type ContextConfig struct {
	MaxBytes int `json:"maxBytes" mapstructure:"maxBytes"`
	TopK     int `json:"topK" mapstructure:"topK"`
}

// MemoryConfig bounds conversation memory sent upstream
type MemoryConfig struct {
	MaxMessages int `json:"maxMessages" mapstructure:"maxMessages"`
}

// WatcherConfig contains filesystem watcher configuration
type WatcherConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	DebounceMs int  `json:"debounceMs" mapstructure:"debounceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		API: APIConfig{
			BaseURL:   "https://api.anthropic.com/v1/messages",
			Model:     "claude-3-sonnet-20240229",
			MaxTokens: 4000,
			KeyEnv:    "CODEASK_API_KEY",
			TimeoutMs: 120000,
		},
		Index: IndexConfig{
			Extensions:       []string{".rs", ".toml", ".md", ".py", ".go", ".ts", ".js", ".java", ".c", ".cpp"},
			Excludes:         []string{".git", ".codeask", "vendor", "node_modules", "target", "dist"},
			MaxFileSizeBytes: 100 * 1024,
			Concurrency:      4,
		},
		Limits: LimitsConfig{},
		Batch: BatchConfig{
			MaxSize:    10,
			IntervalMs: 5000,
		},
		Context: ContextConfig{
			MaxBytes: 200 * 1024,
			TopK:     5,
		},
		Memory: MemoryConfig{
			MaxMessages: 40,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 2000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .codeask/config.json
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".codeask"))

	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.RepoRoot = repoRoot
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.RepoRoot = repoRoot

	return cfg, nil
}

// Save writes the configuration to .codeask/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".codeask")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.API.BaseURL == "" {
		return &ConfigError{Field: "api.baseUrl", Message: "must not be empty"}
	}
	if c.API.MaxTokens <= 0 {
		return &ConfigError{Field: "api.maxTokens", Message: "must be positive"}
	}
	if len(c.Index.Extensions) == 0 {
		return &ConfigError{Field: "index.extensions", Message: "allow-list must not be empty"}
	}
	if c.Index.Concurrency < 1 {
		return &ConfigError{Field: "index.concurrency", Message: "must be at least 1"}
	}
	if c.Batch.MaxSize < 1 {
		return &ConfigError{Field: "batch.maxSize", Message: "must be at least 1"}
	}
	if c.Batch.IntervalMs < 1 {
		return &ConfigError{Field: "batch.intervalMs", Message: "must be positive"}
	}
	if c.Context.TopK < 1 {
		return &ConfigError{Field: "context.topK", Message: "must be at least 1"}
	}
	if c.Memory.MaxMessages < 2 {
		return &ConfigError{Field: "memory.maxMessages", Message: "must hold at least one turn"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
