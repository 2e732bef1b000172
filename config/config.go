// Package config loads the two configuration surfaces the engine consumes:
// environment-supplied credentials (.env aware via godotenv) and a YAML
// runtime configuration covering model roles, tool dispatch tuning, cache
// TTLs, circuit thresholds and progress pacing. Loading happens once; the
// resulting snapshot is read-only during a task's lifetime.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings holds environment-supplied credentials and endpoints.
type Settings struct {
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	AnthropicAPIKey  string

	PlexBaseURL   string
	PlexToken     string
	RadarrBaseURL string
	RadarrAPIKey  string
	SonarrBaseURL string
	SonarrAPIKey  string
	TMDBAPIKey    string
}

// LoadSettings reads credentials from the environment, first merging a .env
// file at envPath when present. A missing .env file is not an error.
func LoadSettings(envPath string) Settings {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	return Settings{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		PlexBaseURL:      getenvDefault("PLEX_BASE_URL", "http://localhost:32400"),
		PlexToken:        os.Getenv("PLEX_TOKEN"),
		RadarrBaseURL:    getenvDefault("RADARR_BASE_URL", "http://localhost:7878"),
		RadarrAPIKey:     os.Getenv("RADARR_API_KEY"),
		SonarrBaseURL:    getenvDefault("SONARR_BASE_URL", "http://localhost:8989"),
		SonarrAPIKey:     os.Getenv("SONARR_API_KEY"),
		TMDBAPIKey:       getenvDefault("TMDB_API_KEY", ""),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// HasCredential reports whether the named model provider has its required
// API key present.
func (s Settings) HasCredential(provider string) bool {
	switch provider {
	case "openai":
		return s.OpenAIAPIKey != ""
	case "openrouter":
		return s.OpenRouterAPIKey != ""
	case "anthropic":
		return s.AnthropicAPIKey != ""
	default:
		return false
	}
}

// RoleSpec describes one role entry under a provider. YAML accepts either a
// bare model-id string or an object with optional reasoningEffort / params.
type RoleSpec struct {
	Model           string         `yaml:"model"`
	ReasoningEffort string         `yaml:"reasoningEffort"`
	Params          map[string]any `yaml:"params"`
}

// UnmarshalYAML implements the scalar-or-object role entry shape.
func (r *RoleSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Model = value.Value
		return nil
	}
	type plain RoleSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = RoleSpec(p)
	return nil
}

// ProviderConfig is one provider's role map plus provider-level defaults
// merged into every role resolution.
type ProviderConfig struct {
	Roles    map[string]RoleSpec `yaml:"roles"`
	Defaults RoleSpec            `yaml:"defaults"`
}

// LLMConfig configures role resolution and loop budgets.
type LLMConfig struct {
	Priority        []string                  `yaml:"priority"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	MaxIters        map[string]int            `yaml:"maxIters"`
	ProviderRetries int                       `yaml:"providerRetries"`
}

// FamilyConfig overrides dispatch tuning for one tool family.
type FamilyConfig struct {
	Parallelism int `yaml:"parallelism"`
	TimeoutMs   int `yaml:"timeoutMs"`
}

// ToolOverride overrides the timeout for one specific tool.
type ToolOverride struct {
	TimeoutMs int `yaml:"timeoutMs"`
}

// ToolsConfig tunes the tool dispatcher.
type ToolsConfig struct {
	TimeoutMs     int                     `yaml:"timeoutMs"`
	Parallelism   int                     `yaml:"parallelism"`
	AcquireWaitMs int                     `yaml:"acquireWaitMs"`
	RetryMax      int                     `yaml:"retryMax"`
	BackoffBaseMs int                     `yaml:"backoffBaseMs"`
	BackoffCapMs  int                     `yaml:"backoffCapMs"`
	HedgeDelayMs  int                     `yaml:"hedgeDelayMs"`
	MaxListItems  int                     `yaml:"maxListItems"`
	Families      map[string]FamilyConfig `yaml:"families"`
	PerTool       map[string]ToolOverride `yaml:"perTool"`
}

// CacheConfig sets TTLs per volatility class.
type CacheConfig struct {
	ShortTTLSec  int `yaml:"shortTTLSec"`
	MediumTTLSec int `yaml:"mediumTTLSec"`
}

// CircuitConfig sets per-family failure isolation thresholds.
type CircuitConfig struct {
	OpenAfterFailures int `yaml:"openAfterFailures"`
	OpenForMs         int `yaml:"openForMs"`
}

// ContextConfig bounds prompt assembly.
type ContextConfig struct {
	MaxToolMessages int `yaml:"maxToolMessages"`
}

// UXConfig paces progress emission.
type UXConfig struct {
	SuppressForMs    int `yaml:"suppressForMs"`
	UpdateIntervalMs int `yaml:"updateIntervalMs"`
}

// Config is the full runtime configuration snapshot.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Cache   CacheConfig   `yaml:"cache"`
	Circuit CircuitConfig `yaml:"circuit"`
	Context ContextConfig `yaml:"context"`
	UX      UXConfig      `yaml:"ux"`
}

// Default returns the baseline configuration used when no file is supplied.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and decodes a YAML config file, filling unset values with
// defaults. A missing file yields the defaults without error.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.LLM.Priority) == 0 {
		c.LLM.Priority = []string{"openai", "anthropic", "openrouter"}
	}
	if c.LLM.MaxIters == nil {
		c.LLM.MaxIters = map[string]int{}
	}
	setIntDefault(&c.LLM.ProviderRetries, 2)
	for role, def := range map[string]int{"chat": 4, "smart": 8, "worker": 3} {
		if c.LLM.MaxIters[role] == 0 {
			c.LLM.MaxIters[role] = def
		}
	}

	setIntDefault(&c.Tools.TimeoutMs, 8000)
	setIntDefault(&c.Tools.Parallelism, 8)
	setIntDefault(&c.Tools.AcquireWaitMs, 2000)
	setIntDefault(&c.Tools.RetryMax, 2)
	setIntDefault(&c.Tools.BackoffBaseMs, 200)
	setIntDefault(&c.Tools.BackoffCapMs, 5000)
	setIntDefault(&c.Tools.HedgeDelayMs, 1500)
	setIntDefault(&c.Tools.MaxListItems, 25)

	setIntDefault(&c.Cache.ShortTTLSec, 60)
	setIntDefault(&c.Cache.MediumTTLSec, 300)

	setIntDefault(&c.Circuit.OpenAfterFailures, 3)
	setIntDefault(&c.Circuit.OpenForMs, 30000)

	setIntDefault(&c.Context.MaxToolMessages, 12)

	setIntDefault(&c.UX.SuppressForMs, 3000)
	setIntDefault(&c.UX.UpdateIntervalMs, 900)
}

func setIntDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// MaxItersFor returns the iteration budget for a role, falling back to the
// worker budget for unknown roles.
func (c Config) MaxItersFor(role string) int {
	if n, ok := c.LLM.MaxIters[role]; ok && n > 0 {
		return n
	}
	return c.LLM.MaxIters["worker"]
}

// ToolTimeout resolves a call timeout by specificity: per-tool, then
// per-family, then the global default.
func (c Config) ToolTimeout(tool, family string) time.Duration {
	if o, ok := c.Tools.PerTool[tool]; ok && o.TimeoutMs > 0 {
		return time.Duration(o.TimeoutMs) * time.Millisecond
	}
	if f, ok := c.Tools.Families[family]; ok && f.TimeoutMs > 0 {
		return time.Duration(f.TimeoutMs) * time.Millisecond
	}
	return time.Duration(c.Tools.TimeoutMs) * time.Millisecond
}

// FamilyParallelism returns the per-family permit cap, defaulting to the
// global parallelism when not overridden.
func (c Config) FamilyParallelism(family string) int {
	if f, ok := c.Tools.Families[family]; ok && f.Parallelism > 0 {
		return f.Parallelism
	}
	return c.Tools.Parallelism
}
