package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnv, "")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, "console", s.Log.Format)
	assert.Equal(t, ".fluentlens/fluentlens.db", s.Storage.Path)
	assert.Equal(t, "127.0.0.1:8787", s.Server.Addr)
	assert.Empty(t, s.Server.URL)
	assert.Equal(t, 2*time.Minute, s.LLM.RequestTimeout)
	assert.InDelta(t, 0.7, s.LLM.Temperature, 1e-6)
	assert.Zero(t, s.LLM.MaxTokens)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnv, "")
	t.Setenv("FLUENTLENS_DB", "/tmp/lens.db")
	t.Setenv("FLUENTLENS_BRIDGE_URL", "http://127.0.0.1:9000")
	t.Setenv("LLM_REQUEST_TIMEOUT", "45s")
	t.Setenv("LLM_MAX_TOKENS", "512")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/lens.db", s.Storage.Path)
	assert.Equal(t, "http://127.0.0.1:9000", s.Server.URL)
	assert.Equal(t, 45*time.Second, s.LLM.RequestTimeout)
	assert.Equal(t, 512, s.LLM.MaxTokens)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lens.yaml")
	yaml := `
log:
  level: debug
  format: json
storage:
  path: /var/lib/lens.db
llm:
  request_timeout: 30s
  default_temperature: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "/var/lib/lens.db", s.Storage.Path)
	assert.Equal(t, 30*time.Second, s.LLM.RequestTimeout)
	assert.InDelta(t, 0.2, s.LLM.Temperature, 1e-6)
	assert.Equal(t, "127.0.0.1:8787", s.Server.Addr, "unset keys keep defaults")
}

func TestLoadEnvBeatsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  path: from-file.db\n"), 0o600))
	t.Setenv("FLUENTLENS_DB", "from-env.db")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", s.Storage.Path)
}

func TestLoadDefaultPathPickedUp(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(PathEnv, "")
	require.NoError(t, os.WriteFile(DefaultPath, []byte("server:\n  addr: 0.0.0.0:9999\n"), 0o600))

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", s.Server.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad level", map[string]string{"FLUENTLENS_LOG_LEVEL": "chatty"}, "log.level"},
		{"bad format", map[string]string{"FLUENTLENS_LOG_FORMAT": "xml"}, "log.format"},
		{"zero timeout", map[string]string{"LLM_REQUEST_TIMEOUT": "0s"}, "llm.request_timeout"},
		{"hot temperature", map[string]string{"LLM_TEMPERATURE": "3"}, "llm.default_temperature"},
		{"negative tokens", map[string]string{"LLM_MAX_TOKENS": "-1"}, "llm.max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(PathEnv, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMustLoadPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	})
}

func TestLogConfigLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := LogConfig{Level: "info", Format: format}.Logger()
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel), "info enabled for %s", format)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "debug disabled for %s", format)
	}

	_, err := LogConfig{Level: "loud", Format: "json"}.Logger()
	assert.Error(t, err)
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	key, err := APIKeyFor("claude")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", key)

	t.Setenv("GROQ_API_KEY", "")
	_, err = APIKeyFor("groq")
	assert.ErrorContains(t, err, "GROQ_API_KEY")

	_, err = APIKeyFor("unknown_provider")
	assert.Error(t, err)
}

func TestModelFor(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	m, err := ModelFor("openai")
	require.NoError(t, err)
	assert.NotEmpty(t, m)

	t.Setenv("OPENAI_MODEL", "gpt-4.1-nano")
	m, err = ModelFor("openai")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-nano", m)

	t.Setenv("CUSTOM_MODEL", "")
	_, err = ModelFor("custom")
	assert.ErrorContains(t, err, "CUSTOM_MODEL")
}

func TestBaseURLFor(t *testing.T) {
	t.Setenv("CUSTOM_BASE_URL", "http://localhost:11434/v1")
	assert.Equal(t, "http://localhost:11434/v1", BaseURLFor("custom"))
	assert.Empty(t, BaseURLFor("nope"))
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	require.NotEmpty(t, providers)
	assert.IsIncreasing(t, providers)
	assert.Contains(t, providers, "anthropic")
	assert.Contains(t, providers, "custom")
}
