package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"openai", "anthropic", "openrouter"}, cfg.LLM.Priority)
	assert.Equal(t, 4, cfg.LLM.MaxIters["chat"])
	assert.Equal(t, 8, cfg.LLM.MaxIters["smart"])
	assert.Equal(t, 3, cfg.LLM.MaxIters["worker"])
	assert.Equal(t, 8000, cfg.Tools.TimeoutMs)
	assert.Equal(t, 60, cfg.Cache.ShortTTLSec)
	assert.Equal(t, 300, cfg.Cache.MediumTTLSec)
	assert.Equal(t, 3, cfg.Circuit.OpenAfterFailures)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  priority: [anthropic, openai]
  providers:
    openai:
      roles:
        chat: gpt-5-mini
        smart:
          model: gpt-5
          reasoningEffort: high
  maxIters:
    smart: 10
tools:
  timeoutMs: 4000
  families:
    movies:
      parallelism: 2
      timeoutMs: 12000
  perTool:
    radarr_add_movie:
      timeoutMs: 20000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "openai"}, cfg.LLM.Priority)
	assert.Equal(t, 10, cfg.LLM.MaxIters["smart"])
	assert.Equal(t, 4, cfg.LLM.MaxIters["chat"], "unset roles keep defaults")
	assert.Equal(t, 4000, cfg.Tools.TimeoutMs)
	assert.Equal(t, 2000, cfg.Tools.AcquireWaitMs, "unset fields keep defaults")

	roles := cfg.LLM.Providers["openai"].Roles
	assert.Equal(t, "gpt-5-mini", roles["chat"].Model, "bare string role entry")
	assert.Equal(t, "gpt-5", roles["smart"].Model)
	assert.Equal(t, "high", roles["smart"].ReasoningEffort)
}

func TestToolTimeoutSpecificity(t *testing.T) {
	cfg := Default()
	cfg.Tools.Families = map[string]FamilyConfig{"movies": {TimeoutMs: 12000}}
	cfg.Tools.PerTool = map[string]ToolOverride{"radarr_add_movie": {TimeoutMs: 20000}}

	assert.Equal(t, 20*time.Second, cfg.ToolTimeout("radarr_add_movie", "movies"), "per-tool wins")
	assert.Equal(t, 12*time.Second, cfg.ToolTimeout("radarr_search_movie", "movies"), "family next")
	assert.Equal(t, 8*time.Second, cfg.ToolTimeout("plex_search", "library"), "global fallback")
}

func TestFamilyParallelism(t *testing.T) {
	cfg := Default()
	cfg.Tools.Families = map[string]FamilyConfig{"movies": {Parallelism: 2}}

	assert.Equal(t, 2, cfg.FamilyParallelism("movies"))
	assert.Equal(t, 8, cfg.FamilyParallelism("library"))
}

func TestMaxItersForUnknownRole(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.MaxItersFor("mystery"))
}

func TestHasCredential(t *testing.T) {
	s := Settings{OpenAIAPIKey: "sk-test"}
	assert.True(t, s.HasCredential("openai"))
	assert.False(t, s.HasCredential("anthropic"))
	assert.False(t, s.HasCredential("bogus"))
}

func TestLoadSettingsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RADARR_API_KEY=abc123\n"), 0o600))
	t.Setenv("RADARR_API_KEY", "placeholder")
	os.Unsetenv("RADARR_API_KEY")

	s := LoadSettings(path)
	assert.Equal(t, "abc123", s.RadarrAPIKey)
	assert.Equal(t, "http://localhost:7878", s.RadarrBaseURL, "default base URL")
}
