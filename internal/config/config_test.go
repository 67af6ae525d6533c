package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty directory so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "groq", cfg.Provider.Name)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Groq.Model)
	assert.Equal(t, []string{"llama-3.1-8b-instant"}, cfg.Provider.FallbackModels)
	assert.Equal(t, []string{"whisper", "tts", "guard", "embed"}, cfg.Provider.ExcludeModels)
	assert.True(t, cfg.Provider.DiscoverModels)
	assert.Equal(t, 5, cfg.Provider.MaxCandidates)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Groq.BaseURL)
	assert.Equal(t, "tavily", cfg.Search.Provider)
	assert.Equal(t, 8, cfg.Search.TimeoutSecs)
	assert.Equal(t, 21600, cfg.Resolver.CacheTTLSecs)
	assert.Equal(t, 20, cfg.Resolver.TimeoutSecs)
	assert.Equal(t, 6, cfg.Resolver.BatchConcurrency)
	assert.Equal(t, 60, cfg.Resolver.DefaultRetryAfterSecs)
	assert.True(t, cfg.Resolver.NamespaceByPrincipal)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "propstatus.db", cfg.Store.SQLitePath)
	assert.False(t, cfg.Refresh.Enabled)
	assert.InDelta(t, 0.5, cfg.Refresh.MinConfidence, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
provider:
  name: anthropic
resolver:
  batch_concurrency: 3
refresh:
  enabled: true
  tenants: [acme, beta]
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.ActiveModel())
	assert.Equal(t, 3, cfg.Resolver.BatchConcurrency)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, []string{"acme", "beta"}, cfg.Refresh.Tenants)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values.
	assert.Equal(t, 20, cfg.Resolver.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PROPSTATUS_STORE_DRIVER", "postgres")
	t.Setenv("PROPSTATUS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GROQ_API_KEY", "gsk-legacy")
	t.Setenv("GROQ_MODEL", "llama-3.1-8b-instant")
	t.Setenv("TAVILY_API_KEY", "tvly-legacy")
	t.Setenv("DATABASE_URL", "postgres://localhost/props")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gsk-legacy", cfg.Groq.APIKey)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.ActiveModel())
	assert.Equal(t, "tvly-legacy", cfg.Tavily.APIKey)
	assert.Equal(t, "postgres://localhost/props", cfg.Store.DatabaseURL)
}

func TestLoadPrefixedEnvBeatsLegacy(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GROQ_API_KEY", "gsk-legacy")
	t.Setenv("PROPSTATUS_GROQ_API_KEY", "gsk-new")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gsk-new", cfg.Groq.APIKey)
}

func TestActiveModel_ExplicitOverride(t *testing.T) {
	cfg := &Config{}
	cfg.Groq.Model = "llama-3.3-70b-versatile"
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.ActiveModel())

	cfg.Provider.Model = "gemma2-9b-it"
	assert.Equal(t, "gemma2-9b-it", cfg.ActiveModel())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
