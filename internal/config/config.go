package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ollama-proxy/internal/logging"
)

const providerClaude = "claude"

// Environment variables that override file values.
const (
	EnvAPIKey   = "ANTHROPIC_API_KEY"
	EnvBaseURL  = "ANTHROPIC_BASE_URL"
	EnvHost     = "OLLAMA_PROXY_HOST"
	EnvPort     = "OLLAMA_PROXY_PORT"
	EnvLogLevel = "OLLAMA_PROXY_LOG_LEVEL"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// UpstreamConfig captures authentication and routing info for the upstream API.
type UpstreamConfig struct {
	Provider              string            `yaml:"provider"`
	APIKey                string            `yaml:"api_key"`
	BaseURL               string            `yaml:"base_url"`
	APIVersion            string            `yaml:"api_version"`
	ConnectTimeout        time.Duration     `yaml:"connect_timeout"`
	ResponseHeaderTimeout time.Duration     `yaml:"response_header_timeout"`
	Headers               Headers           `yaml:"headers"`
	Aliases               map[string]string `yaml:"aliases"`
	Models                []ModelConfig     `yaml:"models"`
}

// Headers contains additional HTTP headers to send with an upstream request.
type Headers map[string]string

// ModelConfig describes a catalog entry. When no models are configured the
// provider's built-in catalog is used.
type ModelConfig struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	ParameterSize string `yaml:"parameter_size"`
	Size          int64  `yaml:"size"`
	ContextLength int    `yaml:"context_length"`
}

// DefaultsConfig holds the chat options applied when a request omits them.
type DefaultsConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         11434,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		Upstream: UpstreamConfig{
			Provider:              providerClaude,
			BaseURL:               "https://api.anthropic.com",
			APIVersion:            "2023-06-01",
			ConnectTimeout:        30 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
		},
		Defaults: DefaultsConfig{
			Model:       "claude-3-5-sonnet-20241022",
			Temperature: 0.7,
			TopP:        0.9,
			MaxTokens:   4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory and environment overrides, then validates it.
// Variables already set in the environment take precedence over .env values.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.Upstream.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHost)); v != "" {
		c.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a valid integer: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate performs strict sanity checks on the configuration. A missing API
// key is not a configuration error; requests fail fast without it.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.WriteTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if err := validateUpstream(c.Upstream); err != nil {
		return err
	}

	if strings.TrimSpace(c.Defaults.Model) == "" {
		return fmt.Errorf("defaults.model must not be empty")
	}
	if c.Defaults.Temperature < 0 || c.Defaults.Temperature > 2 {
		return fmt.Errorf("defaults.temperature must be within [0, 2], got %g", c.Defaults.Temperature)
	}
	if c.Defaults.TopP < 0 || c.Defaults.TopP > 1 {
		return fmt.Errorf("defaults.top_p must be within [0, 1], got %g", c.Defaults.TopP)
	}
	if c.Defaults.MaxTokens <= 0 {
		return fmt.Errorf("defaults.max_tokens must be positive, got %d", c.Defaults.MaxTokens)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be one of %q or %q", c.Logging.Format, "text", "json")
	}

	return nil
}

func validateUpstream(u UpstreamConfig) error {
	if u.Provider != providerClaude {
		return fmt.Errorf("upstream.provider %q is not supported (want %q)", u.Provider, providerClaude)
	}

	base := strings.TrimSpace(u.BaseURL)
	if base == "" {
		return fmt.Errorf("upstream.base_url must be provided")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("upstream.base_url %q must be an absolute URL", u.BaseURL)
	}
	if strings.TrimSpace(u.APIVersion) == "" {
		return fmt.Errorf("upstream.api_version must be provided")
	}

	seen := make(map[string]struct{}, len(u.Models))
	for _, model := range u.Models {
		name := strings.TrimSpace(model.Name)
		if name == "" {
			return fmt.Errorf("upstream.models: model name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("upstream.models: model %q listed twice", name)
		}
		seen[name] = struct{}{}
		if model.Size < 0 || model.ContextLength < 0 {
			return fmt.Errorf("upstream.models: model %q has negative size or context length", name)
		}
	}

	for headerKey := range u.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("upstream: header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	for alias, target := range u.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("upstream: alias name must not be empty")
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("upstream: alias %q target must not be empty", alias)
		}
	}

	return nil
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
