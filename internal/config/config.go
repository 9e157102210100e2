package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	FAQ     FAQConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	Driver      string
	DataDir     string
	DatabaseURL string
}

type LLMConfig struct {
	Provider         string
	Model            string
	BaseURL          string
	Timeout          time.Duration
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

type FAQConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Storage: StorageConfig{
			Driver:  DriverSQLite,
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Provider: ProviderGemini,
			Timeout:  30 * time.Second,
		},
		FAQ: FAQConfig{
			Path: "faqs.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// YAML config file, the secrets file and environment variables, in that
// order of increasing precedence. Variables already present in the process
// environment are never overridden by .env.
//
// A missing LLM credential is not an error: the service starts with the
// LLM disabled and reports itself unavailable for questions.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.LLM.GeminiAPIKey == "" {
		if key, err := secrets.Get("gemini_api_key"); err == nil && key != "" {
			cfg.LLM.GeminiAPIKey = key
		}
	}
	if cfg.LLM.OpenRouterAPIKey == "" {
		if key, err := secrets.Get("openrouter_api_key"); err == nil && key != "" {
			cfg.LLM.OpenRouterAPIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel(cfg.LLM.Provider)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		return fmt.Errorf("invalid llm.provider %q: want %q or %q", c.LLM.Provider, ProviderGemini, ProviderOpenRouter)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.driver %q requires DATABASE_URL", DriverPostgres)
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: want %q or %q", c.Storage.Driver, DriverSQLite, DriverPostgres)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

func defaultModel(provider string) string {
	if provider == ProviderOpenRouter {
		return "google/gemini-2.0-flash-001"
	}
	return "gemini-2.0-flash"
}

// APIKey returns the credential of the selected provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == ProviderOpenRouter {
		return c.OpenRouterAPIKey
	}
	return c.GeminiAPIKey
}

// LLMEnabled reports whether the selected provider has a credential.
func (c Config) LLMEnabled() bool {
	return c.LLM.APIKey() != ""
}

// CredentialHint names the environment variable that supplies the
// selected provider's credential.
func (c Config) CredentialHint() string {
	if c.LLM.Provider == ProviderOpenRouter {
		return "OPENROUTER_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "supportbot-data"
		}
	}
	return filepath.Join(dir, "supportbot")
}

func configFilePath() string {
	if p := strings.TrimSpace(os.Getenv("SUPPORTBOT_CONFIG")); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "supportbot", "config.yaml")
}
