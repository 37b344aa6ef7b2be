// Package config loads the server configuration. Sources are merged in a
// fixed order, later ones winning: built-in defaults, an optional .env file,
// an optional TOML file, and finally process environment variables. The
// merged result is validated before anything starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

var validate = validator.New()

// DefaultPath is the TOML file consulted when no explicit path is given.
const DefaultPath = "config.toml"

// Config is the full server configuration.
type Config struct {
	ServerName    string `toml:"server_name" validate:"required"`
	ServerVersion string `toml:"server_version" validate:"required"`
	Host          string `toml:"host" validate:"required"`
	Port          int    `toml:"port" validate:"min=1,max=65535"`
	LogLevel      string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `toml:"log_format" validate:"oneof=text json"`
	LogFile       string `toml:"log_file"`

	OpenAI    OpenAIConfig    `toml:"openai"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Ollama    OllamaConfig    `toml:"ollama"`
	File      FileConfig      `toml:"file"`
	Web       WebConfig       `toml:"web"`
}

// OpenAIConfig configures the OpenAI agent. The API key is read from the
// environment only and never persisted to the config file.
type OpenAIConfig struct {
	APIKey  string `toml:"-"`
	Model   string `toml:"model" validate:"required"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
}

// AnthropicConfig configures the Anthropic agent. Same key handling as
// OpenAIConfig.
type AnthropicConfig struct {
	APIKey    string `toml:"-"`
	Model     string `toml:"model" validate:"required"`
	MaxTokens int64  `toml:"max_tokens" validate:"min=1,max=4096"`
	BaseURL   string `toml:"base_url" validate:"omitempty,url"`
}

// OllamaConfig configures the local Ollama agent.
type OllamaConfig struct {
	URL   string `toml:"url" validate:"required,url"`
	Model string `toml:"model" validate:"required"`
}

// FileConfig configures the file agent. Root confines every path the agent
// touches; MaxSize caps reads; AllowedExtensions restricts writes (empty
// means no restriction).
type FileConfig struct {
	Root              string `toml:"root" validate:"required"`
	MaxSize           int64  `toml:"max_size" validate:"min=1"`
	AllowedExtensions string `toml:"allowed_extensions"`
}

// AllowedExtensionList splits the comma-separated extension allowlist,
// normalized to lower case with a leading dot.
func (f FileConfig) AllowedExtensionList() []string {
	parts := strings.Split(f.AllowedExtensions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}

// WebConfig configures the web fetch agent.
type WebConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds" validate:"min=1"`
}

// Default returns the built-in configuration, matching the documented
// out-of-the-box behavior of the server.
func Default() Config {
	return Config{
		ServerName:    "Agentic MCP Server",
		ServerVersion: "1.0.0",
		Host:          "localhost",
		Port:          8000,
		LogLevel:      "info",
		LogFormat:     "text",
		OpenAI: OpenAIConfig{
			Model: "gpt-4",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-3-7-sonnet-20250219",
			MaxTokens: 1000,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llama3.2:latest",
		},
		File: FileConfig{
			Root:              ".",
			MaxSize:           10 * 1024 * 1024,
			AllowedExtensions: ".txt,.py,.js,.json,.md,.csv,.log",
		},
		Web: WebConfig{
			TimeoutSeconds: 20,
		},
	}
}

// Load merges defaults, .env, the TOML file at path, and environment
// overrides, then validates the result. A missing file is only an error when
// the path was given explicitly; a missing .env is never an error.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Running without a config file is a supported setup.
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.ServerName, "MCP_SERVER_NAME")
	setString(&cfg.ServerVersion, "MCP_SERVER_VERSION")
	setString(&cfg.Host, "SERVER_HOST")
	setInt(&cfg.Port, "SERVER_PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.LogFile, "LOG_FILE")

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "ANTHROPIC_MODEL")
	setString(&cfg.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")

	setString(&cfg.Ollama.URL, "OLLAMA_URL")
	setString(&cfg.Ollama.Model, "OLLAMA_MODEL")

	setString(&cfg.File.Root, "FILE_ROOT")
	setInt64(&cfg.File.MaxSize, "FILE_MAX_SIZE")
	setString(&cfg.File.AllowedExtensions, "FILE_ALLOWED_EXTENSIONS")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
