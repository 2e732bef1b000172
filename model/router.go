package model

import (
	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
)

// Handle is a resolved (role, provider) binding: the concrete model to call
// and the parameters merged from provider defaults and the role entry.
type Handle struct {
	Provider        string
	Model           Model
	ModelID         string
	ReasoningEffort string
	Params          map[string]any
}

// Factory constructs a provider-backed Model for a resolved model id.
type Factory func(modelID string, spec config.RoleSpec) (Model, error)

// Router resolves roles to model handles. Providers are consulted in
// configured priority order; a provider is skipped when it lacks a mapping
// for the role or when its credential is absent.
type Router struct {
	cfg       config.LLMConfig
	settings  config.Settings
	factories map[string]Factory
}

// NewRouter builds a Router over the configured providers. factories maps
// provider name to the constructor for that provider's models.
func NewRouter(cfg config.LLMConfig, settings config.Settings, factories map[string]Factory) *Router {
	return &Router{cfg: cfg, settings: settings, factories: factories}
}

// merge overlays the role entry on the provider defaults. Role values win.
func merge(defaults, role config.RoleSpec) config.RoleSpec {
	out := role
	if out.ReasoningEffort == "" {
		out.ReasoningEffort = defaults.ReasoningEffort
	}
	if len(defaults.Params) > 0 {
		params := make(map[string]any, len(defaults.Params)+len(role.Params))
		for k, v := range defaults.Params {
			params[k] = v
		}
		for k, v := range role.Params {
			params[k] = v
		}
		out.Params = params
	}
	return out
}

// Resolve returns the highest-priority usable handle for role. When no
// provider can serve the role the error is a core.ConfigurationError, which
// callers treat as fatal rather than retryable.
func (r *Router) Resolve(role string) (*Handle, error) {
	handles, err := r.ResolveAll(role)
	if err != nil {
		return nil, err
	}
	return handles[0], nil
}

// ResolveAll returns every usable handle for role in priority order, the
// fallback chain the loop walks when a provider fails mid-task.
func (r *Router) ResolveAll(role string) ([]*Handle, error) {
	var handles []*Handle
	mapped := false

	for _, provider := range r.cfg.Priority {
		pc, ok := r.cfg.Providers[provider]
		if !ok {
			continue
		}
		spec, ok := pc.Roles[role]
		if !ok || spec.Model == "" {
			continue
		}
		mapped = true
		if !r.settings.HasCredential(provider) {
			continue
		}
		factory, ok := r.factories[provider]
		if !ok {
			continue
		}

		merged := merge(pc.Defaults, spec)
		// The chat role answers interactively and favors latency; deeper
		// reasoning belongs to smart and worker unless configured.
		if role == "chat" && merged.ReasoningEffort == "" {
			merged.ReasoningEffort = "minimal"
		}
		m, err := factory(merged.Model, merged)
		if err != nil {
			return nil, &core.ConfigurationError{Role: role, Reason: provider + ": " + err.Error()}
		}
		handles = append(handles, &Handle{
			Provider:        provider,
			Model:           m,
			ModelID:         merged.Model,
			ReasoningEffort: merged.ReasoningEffort,
			Params:          merged.Params,
		})
	}

	if len(handles) > 0 {
		return handles, nil
	}
	if mapped {
		return nil, &core.ConfigurationError{Role: role, Reason: "no mapped provider has credentials"}
	}
	return nil, &core.ConfigurationError{Role: role, Reason: "no provider maps this role"}
}
