package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "pokedex.yaml"

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for pokedex.
// Configuration can come from a YAML file (pokedex.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// API keys must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Store   StoreConfig   `yaml:"store"`
	PokeAPI PokeAPIConfig `yaml:"pokeapi"`
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Query   QueryConfig   `yaml:"query"`
	Sandbox SandboxConfig `yaml:"sandbox"`
}

// StoreConfig locates the local SQLite mirror.
type StoreConfig struct {
	Path string `yaml:"path" env:"POKEDEX_DB_PATH" env-default:"data/pokedex.db"`
}

// PokeAPIConfig controls the mirror builder's HTTP source.
type PokeAPIConfig struct {
	BaseURL  string        `yaml:"base_url" env:"POKEAPI_BASE_URL" env-default:"https://pokeapi.co/api/v2"`
	Timeout  time.Duration `yaml:"timeout" env:"POKEAPI_TIMEOUT" env-default:"30s"`
	PageSize int           `yaml:"page_size" env:"POKEAPI_PAGE_SIZE" env-default:"100"`
}

// LLMConfig selects the hosted model.
type LLMConfig struct {
	Provider       string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL        string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model          string        `yaml:"model" env:"LLM_MODEL" env-default:""`
	Temperature    float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT" env-default:"60s"`

	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// AgentConfig bounds the tool-calling loop.
type AgentConfig struct {
	MaxRounds int `yaml:"max_rounds" env:"AGENT_MAX_ROUNDS" env-default:"10"`
}

// QueryConfig bounds the read-only query gateway.
type QueryConfig struct {
	RowCap  int           `yaml:"row_cap" env:"QUERY_ROW_CAP" env-default:"500"`
	Timeout time.Duration `yaml:"timeout" env:"QUERY_TIMEOUT" env-default:"10s"`
}

// SandboxConfig bounds snippet evaluation.
type SandboxConfig struct {
	Timeout  time.Duration `yaml:"timeout" env:"SANDBOX_TIMEOUT" env-default:"5s"`
	MaxSteps uint64        `yaml:"max_steps" env:"SANDBOX_MAX_STEPS" env-default:"50000000"`
}

// Load reads configuration from path (or pokedex.yaml when path is empty)
// with environment variable overrides. A missing default file is not an
// error; configuration then comes from the environment alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist) && !explicit:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.BaseURL = ResolveURLForDocker(cfg.LLM.BaseURL)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm provider %q (want %s or %s)", c.LLM.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent max_rounds must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Query.RowCap < 1 {
		return fmt.Errorf("query row_cap must be at least 1, got %d", c.Query.RowCap)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.Store.Path == "" {
		return errors.New("store path must not be empty")
	}
	return nil
}

// IsDevelopment reports whether human-readable logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev" || c.Env == "development"
}

// APIKey returns the key for the configured provider.
func (c *LLMConfig) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// EffectiveModel returns the configured model or the provider default.
func (c *LLMConfig) EffectiveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderAnthropic {
		return "claude-sonnet-4-5-20250929"
	}
	return "gpt-4o-mini"
}
