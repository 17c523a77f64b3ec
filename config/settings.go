// Package config provides application settings loaded from a YAML file and
// environment variables.
//
// Settings are created via Load() which handles:
// - YAML and environment parsing (environment wins)
// - Default value application through env-default tags
// - Validation of the loaded values
// - Provider-specific environment lookups for seeding credentials

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/richinex/fluentlens/llm"
)

// DefaultPath is read when Load gets no explicit path and the file exists.
const DefaultPath = "fluentlens.yaml"

// PathEnv names an explicit configuration file.
const PathEnv = "FLUENTLENS_CONFIG"

// Settings holds all application configuration.
type Settings struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"FLUENTLENS_LOG_LEVEL"  env-default:"warn"`
	Format string `yaml:"format" env:"FLUENTLENS_LOG_FORMAT" env-default:"console"`
}

// StorageConfig holds the local database location.
type StorageConfig struct {
	Path string `yaml:"path" env:"FLUENTLENS_DB" env-default:".fluentlens/fluentlens.db"`
}

// ServerConfig holds bridge settings. When URL is set, sessions talk to a
// bridge at that address instead of an in-process background.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"FLUENTLENS_ADDR"       env-default:"127.0.0.1:8787"`
	URL  string `yaml:"url"  env:"FLUENTLENS_BRIDGE_URL"`
}

// LLMConfig holds request defaults applied by the gateway.
type LLMConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"     env:"LLM_REQUEST_TIMEOUT" env-default:"2m"`
	Temperature    float32       `yaml:"default_temperature" env:"LLM_TEMPERATURE"     env-default:"0.7"`
	MaxTokens      int           `yaml:"max_tokens"          env:"LLM_MAX_TOKENS"      env-default:"0"`
}

// Load reads settings from path, then from the environment.
// Priority: ENV > YAML > defaults. An empty path falls back to
// FLUENTLENS_CONFIG and then to DefaultPath if that file exists.
func Load(path string) (Settings, error) {
	var s Settings

	explicit := path != ""
	if !explicit {
		path = os.Getenv(PathEnv)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &s); err != nil {
			return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return Settings{}, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&s); err != nil {
		return Settings{}, fmt.Errorf("config: read env: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: validate: %w", err)
	}
	return s, nil
}

// MustLoad is Load that panics on error.
// Use this only when configuration errors should be fatal.
func MustLoad(path string) Settings {
	s, err := Load(path)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// Validate checks business rules on loaded settings.
func (s Settings) Validate() error {
	if _, err := zapcore.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console (got %q)", s.Log.Format)
	}
	if strings.TrimSpace(s.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(s.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if s.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("llm.request_timeout must be > 0 (got %v)", s.LLM.RequestTimeout)
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fmt.Errorf("llm.default_temperature must be within 0..2 (got %v)", s.LLM.Temperature)
	}
	if s.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0 (got %d)", s.LLM.MaxTokens)
	}
	return nil
}

// Logger builds a zap logger from the log settings.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if c.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	key := os.Getenv(p.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", p.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking <PROVIDER>_MODEL
// first and falling back to the provider's default model.
func ModelFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	if val := os.Getenv(modelEnv(p)); val != "" {
		return val, nil
	}
	if m := p.DefaultModel(); m != "" {
		return m, nil
	}
	return "", fmt.Errorf("%s environment variable not set", modelEnv(p))
}

// BaseURLFor returns <PROVIDER>_BASE_URL, used for the custom provider.
func BaseURLFor(provider string) string {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return ""
	}
	return os.Getenv(strings.ToUpper(p.String()) + "_BASE_URL")
}

// SupportedProviders returns the provider names in sorted order.
func SupportedProviders() []string {
	types := llm.ProviderTypes()
	result := make([]string, 0, len(types))
	for _, p := range types {
		result = append(result, p.String())
	}
	sort.Strings(result)
	return result
}

func modelEnv(p llm.ProviderType) string {
	return strings.ToUpper(p.String()) + "_MODEL"
}
