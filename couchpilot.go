// Package couchpilot provides a high-level façade over the tool-orchestration
// engine for a household media assistant. Most applications interact with
// this package by:
//  1. Creating an Engine via New() with settings and a runtime Config
//  2. Optionally registering extra tools on the Registry
//  3. Handling user messages with HandleMessage, which runs the planning
//     loop for the chosen role, streaming progress while it works, and
//     delivers the assistant's answer
//
// The façade wires the reliability stack (cache and coalescing, circuit
// breakers, concurrency limits, retry and hedging), role-routed model
// providers and the media toolset. All defaults are safe for local
// development; production deployments supply real credentials through the
// environment and tune behavior through the YAML runtime config.
package couchpilot

import (
	"context"
	"net/http"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/couchpilot/couchpilot/agent"
	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/conversation"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/executor"
	"github.com/couchpilot/couchpilot/logging"
	"github.com/couchpilot/couchpilot/media"
	"github.com/couchpilot/couchpilot/model"
	"github.com/couchpilot/couchpilot/model/anthropic"
	"github.com/couchpilot/couchpilot/model/openai"
	"github.com/couchpilot/couchpilot/tool"
)

// Options configures the Engine.
type Options struct {
	// Logger defaults to a NoOp logger when nil.
	Logger logging.Logger

	// Backends overrides the media upstream clients entirely. When nil the
	// clients are built from settings, skipping services without
	// credentials.
	Backends *media.Backends

	// HTTPClient is used by the default upstream clients.
	HTTPClient *http.Client

	// ModelFactories overrides provider construction, mainly for tests.
	ModelFactories map[string]model.Factory

	// PrefsPath is the YAML file for household preferences. Empty keeps
	// them in memory.
	PrefsPath string
}

// Engine is the assembled media assistant.
type Engine struct {
	cfg      config.Config
	settings config.Settings
	registry *tool.Registry
	executor *executor.Executor
	agent    *agent.Agent
	service  *agent.Service
	store    *conversation.InMemoryStore
}

// New assembles an Engine from settings and runtime configuration.
func New(settings config.Settings, cfg config.Config, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Logger: logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry()
	exec := executor.New(cfg, registry, nil, func(o *executor.Options) {
		o.Logger = opts.Logger
	})

	backends := defaultBackends(settings, opts)
	if err := media.RegisterAll(registry, backends, exec.Refs()); err != nil {
		return nil, err
	}

	factories := opts.ModelFactories
	if factories == nil {
		factories = providerFactories(settings)
	}
	router := model.NewRouter(cfg.LLM, settings, factories)

	ag := agent.New(cfg, registry, exec, router, func(o *agent.Options) {
		o.Logger = opts.Logger
	})
	ag.SetDispatcher(agent.NewDispatcher(ag))
	exec.SetNotify(ag.Publish)

	store := conversation.NewInMemoryStore()

	eng := &Engine{
		cfg:      cfg,
		settings: settings,
		registry: registry,
		executor: exec,
		agent:    ag,
		service:  agent.NewService(ag, store, cfg),
		store:    store,
	}
	return eng, nil
}

func defaultBackends(settings config.Settings, opts Options) media.Backends {
	if opts.Backends != nil {
		return *opts.Backends
	}

	backends := media.Backends{}
	if settings.PlexToken != "" {
		backends.Library = media.NewPlexClient(settings, opts.HTTPClient)
	}
	if settings.TMDBAPIKey != "" {
		backends.Catalog = media.NewTMDBClient(settings, opts.HTTPClient)
	}
	if settings.RadarrAPIKey != "" {
		backends.Movies = media.NewRadarrClient(settings, opts.HTTPClient)
	}
	if settings.SonarrAPIKey != "" {
		backends.Series = media.NewSonarrClient(settings, opts.HTTPClient)
	}
	if prefs, err := media.NewPrefsStore(opts.PrefsPath); err == nil {
		backends.Prefs = prefs
	}
	return backends
}

// providerFactories builds the default provider constructors. OpenRouter
// rides the OpenAI adapter with a base URL override.
func providerFactories(settings config.Settings) map[string]model.Factory {
	return map[string]model.Factory{
		"openai": func(modelID string, spec config.RoleSpec) (model.Model, error) {
			return openai.NewModel(func(o *openai.Options) {
				o.Model = modelID
				o.APIKey = settings.OpenAIAPIKey
				o.ReasoningEffort = spec.ReasoningEffort
				if v, ok := paramFloat(spec.Params, "temperature"); ok {
					o.Temperature = v
				}
				if v, ok := paramInt(spec.Params, "maxTokens"); ok {
					o.MaxCompletionTokens = v
				}
			}), nil
		},
		"openrouter": func(modelID string, spec config.RoleSpec) (model.Model, error) {
			return openai.NewModel(func(o *openai.Options) {
				o.Model = modelID
				o.APIKey = settings.OpenRouterAPIKey
				o.BaseURL = "https://openrouter.ai/api/v1"
				o.Provider = "openrouter"
				o.ReasoningEffort = spec.ReasoningEffort
				if v, ok := paramFloat(spec.Params, "temperature"); ok {
					o.Temperature = v
				}
				if v, ok := paramInt(spec.Params, "maxTokens"); ok {
					o.MaxCompletionTokens = v
				}
			}), nil
		},
		"anthropic": func(modelID string, spec config.RoleSpec) (model.Model, error) {
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.Model = anthropicsdk.Model(modelID)
				o.APIKey = settings.AnthropicAPIKey
				if v, ok := paramFloat(spec.Params, "temperature"); ok {
					o.Temperature = v
				}
				if v, ok := paramInt(spec.Params, "maxTokens"); ok {
					o.MaxTokens = v
				}
			}), nil
		},
	}
}

// paramFloat reads a numeric role param. YAML decodes whole numbers as int,
// so both shapes are accepted.
func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func paramInt(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Registry exposes the tool registry for registering additional tools.
func (e *Engine) Registry() *tool.Registry { return e.registry }

// Agent exposes the underlying agent, mainly for attaching progress
// subscribers.
func (e *Engine) Agent() *agent.Agent { return e.agent }

// HandleMessage starts one user message in a conversation under a role
// ("chat", "smart" or "worker"). The returned turn streams paced progress
// updates while the task runs; Wait blocks for the reply.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, role, text string) (*agent.Turn, error) {
	return e.service.HandleMessage(ctx, conversationID, role, text)
}

// RunTask executes a one-off task outside any stored conversation.
func (e *Engine) RunTask(ctx context.Context, role, text string) (*agent.Result, error) {
	task := core.NewTask(role, core.ConversationHistory{core.NewUserContent(text)}, e.cfg.MaxItersFor(role))
	return e.agent.Run(ctx, task)
}
