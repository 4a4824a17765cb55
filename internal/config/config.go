// Package config loads the application configuration from YAML with
// environment variable expansion, applies defaults, and validates the result.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini" json:"gemini"`
	Agent   AgentConfig   `yaml:"agent" json:"agent"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GeminiConfig configures the model gateway.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Supports ${ENV}
	// expansion, e.g. "${GEMINI_API_KEY}".
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model is the default model identifier.
	Model string `yaml:"model" json:"model"`

	// RetryDelay is the fixed pause between generate attempts.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	// SystemPrompt prefixes fresh conversations.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	// MaxIterations caps tool rounds per chat.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// Retries is the per-model-call retry budget.
	Retries int `yaml:"retries" json:"retries"`

	// ToolMode is "any" or "auto".
	ToolMode string `yaml:"tool_mode" json:"tool_mode"`

	// MaxBatchSize runs tool batches in sequential chunks of this size.
	// Zero runs the whole batch concurrently.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`

	// ToolRateLimit paces chunked execution to this many chunks per
	// second. Zero disables pacing. Only meaningful with max_batch_size.
	ToolRateLimit float64 `yaml:"tool_rate_limit" json:"tool_rate_limit"`
}

// StorageConfig selects the chat history backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	AddSource bool   `yaml:"add_source" json:"add_source"`
}

// Default returns the configuration used when a field is left unset.
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model:      "gemini-2.0-flash",
			RetryDelay: time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			Retries:       1,
			ToolMode:      "any",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "fastgemini.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path, expands ${ENV} references, fills
// defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated configuration.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields an explicit YAML document
// zeroed out or omitted inside a present section.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Gemini.Model == "" {
		c.Gemini.Model = def.Gemini.Model
	}
	if c.Gemini.RetryDelay <= 0 {
		c.Gemini.RetryDelay = def.Gemini.RetryDelay
	}
	if c.Agent.MaxIterations < 1 {
		c.Agent.MaxIterations = def.Agent.MaxIterations
	}
	if c.Agent.Retries < 0 {
		c.Agent.Retries = def.Agent.Retries
	}
	if c.Agent.ToolMode == "" {
		c.Agent.ToolMode = def.Agent.ToolMode
	}
	if c.Agent.MaxBatchSize < 0 {
		c.Agent.MaxBatchSize = 0
	}
	if c.Agent.ToolRateLimit < 0 {
		c.Agent.ToolRateLimit = 0
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	switch c.Agent.ToolMode {
	case "any", "auto":
	default:
		return fmt.Errorf("config: agent.tool_mode must be \"any\" or \"auto\", got %q", c.Agent.ToolMode)
	}
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: storage.backend must be \"memory\" or \"sqlite\", got %q", c.Storage.Backend)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}
	return nil
}

// JSONSchema renders the JSON Schema describing config files, for editor
// completion and CI validation.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		ExpandedStruct: true,
	}
	return json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
}
