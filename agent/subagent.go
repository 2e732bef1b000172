package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/couchpilot/couchpilot/core"
)

// Objective is a scoped unit of work handed to a worker sub-agent.
type Objective struct {
	Name   string
	Prompt string
	Args   map[string]any
}

// key is the dedup identity of an objective: name plus canonically ordered
// arguments, so the same investigation is never dispatched twice per task.
func (o Objective) key() string {
	keys := make([]string, 0, len(o.Args))
	for k := range o.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(o.Name)
	for _, k := range keys {
		v, _ := json.Marshal(o.Args[k])
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.Write(v)
	}
	return b.String()
}

// Signature inspects an iteration's results and proposes follow-up
// objectives when it recognizes a failure worth investigating.
type Signature func(results []core.ToolResult) []Objective

// EmptySearchSignature fires when a search comes back with nothing: a lookup
// tool succeeding with zero items, or a whole-season download search that
// failed outright. The worker retries the lookup with looser phrasing, or
// falls back to searching the season's episodes one by one, before the main
// loop gives up on the title.
func EmptySearchSignature(results []core.ToolResult) []Objective {
	searchTools := map[string]bool{
		"plex_search":        true,
		"tmdb_search_movies": true,
		"tmdb_search_series": true,
		"radarr_lookup":      true,
		"sonarr_lookup":      true,
	}

	var objectives []Objective
	for _, r := range results {
		if r.Call.Name == "sonarr_search_season" {
			if r.Err == nil || core.IsCircuitOpen(r.Err) || core.IsValidation(r.Err) {
				continue
			}
			var args map[string]any
			_ = json.Unmarshal(r.Call.Args, &args)
			objectives = append(objectives, Objective{
				Name: "search_episodes_individually",
				Prompt: fmt.Sprintf(
					"A whole-season download search with arguments %s failed. Fall back to "+
						"individual episodes: list the season's episodes with sonarr_episodes, "+
						"make sure the missing ones are monitored via sonarr_monitor_episodes, "+
						"then trigger sonarr_search_episodes for them. Report which episodes "+
						"were searched and which could not be.",
					string(r.Call.Args)),
				Args: args,
			})
			continue
		}

		if !r.OK() || !searchTools[r.Call.Name] {
			continue
		}
		if items, ok := r.Payload.([]any); !ok || len(items) > 0 {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal(r.Call.Args, &args)
		objectives = append(objectives, Objective{
			Name: "retry_empty_search",
			Prompt: fmt.Sprintf(
				"A search via %s with arguments %s returned nothing. Try alternative spellings, "+
					"shorter queries or a different search tool for the same title, and report "+
					"what you find or that it genuinely does not exist.",
				r.Call.Name, string(r.Call.Args)),
			Args: args,
		})
	}
	return objectives
}

// QualityFallbackSignature fires when adding or updating a title is refused
// over its quality profile. The worker looks up the profiles the manager
// actually offers and retries the change with the closest one.
func QualityFallbackSignature(results []core.ToolResult) []Objective {
	qualityTools := map[string]bool{
		"radarr_add_movie":     true,
		"sonarr_add_series":    true,
		"sonarr_update_series": true,
	}

	var objectives []Objective
	for _, r := range results {
		if !qualityTools[r.Call.Name] || r.Err == nil || core.IsCircuitOpen(r.Err) {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Err.Error()), "quality") {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal(r.Call.Args, &args)
		objectives = append(objectives, Objective{
			Name: "fallback_quality",
			Prompt: fmt.Sprintf(
				"%s with arguments %s was rejected over its quality profile. List the available "+
					"profiles with sonarr_quality_profiles, pick the closest match to what was "+
					"requested, retry the change with it, and summarize which profile was used "+
					"instead and why.",
				r.Call.Name, string(r.Call.Args)),
			Args: args,
		})
	}
	return objectives
}

// FamilyOutageSignature fires when a family's circuit rejects calls. The
// worker checks whether another upstream can answer the same question.
func FamilyOutageSignature(results []core.ToolResult) []Objective {
	seen := map[string]bool{}
	var objectives []Objective
	for _, r := range results {
		if !core.IsCircuitOpen(r.Err) || seen[r.Call.Family] {
			continue
		}
		seen[r.Call.Family] = true
		objectives = append(objectives, Objective{
			Name: "route_around_outage",
			Prompt: fmt.Sprintf(
				"Calls to the %s tools are temporarily failing. Answer the original question "+
					"using other tool families where possible, and say clearly which information "+
					"is unavailable right now.",
				r.Call.Family),
			Args: map[string]any{"family": r.Call.Family},
		})
	}
	return objectives
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Signatures []Signature
	// MaxDispatches caps sub-agent runs per task.
	MaxDispatches int
}

// Dispatcher examines iteration results and runs worker sub-agents for
// recognized failure signatures. Each objective is dispatched at most once
// per dispatcher lifetime, which matches one parent task.
type Dispatcher struct {
	agent      *Agent
	signatures []Signature
	maxRuns    int

	mu         sync.Mutex
	dispatched map[string]bool
	runs       int
}

// NewDispatcher builds a Dispatcher over the given agent. By default both
// built-in signatures are active and at most two sub-agents run per task.
func NewDispatcher(agent *Agent, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		Signatures:    []Signature{EmptySearchSignature, QualityFallbackSignature, FamilyOutageSignature},
		MaxDispatches: 2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Dispatcher{
		agent:      agent,
		signatures: opts.Signatures,
		maxRuns:    opts.MaxDispatches,
		dispatched: make(map[string]bool),
	}
}

// Examine collects the objectives proposed by the signatures for these
// results, minus any already dispatched. Identical proposals within one
// batch collapse to a single objective.
func (d *Dispatcher) Examine(results []core.ToolResult) []Objective {
	var objectives []Objective
	seen := map[string]bool{}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sig := range d.signatures {
		for _, obj := range sig(results) {
			key := obj.key()
			if d.dispatched[key] || seen[key] {
				continue
			}
			seen[key] = true
			objectives = append(objectives, obj)
		}
	}
	return objectives
}

// Dispatch runs a worker sub-agent for the objective and returns its answer
// as a synthetic tool result the parent folds like any other. The worker
// gets the worker role's own iteration budget and cannot recurse into
// further sub-agents. Failures are carried in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, objective Objective) core.ToolResult {
	call := core.ToolCall{
		ID:     core.NewID(),
		Name:   "sub_agent",
		Family: "agent",
	}
	if data, err := json.Marshal(objective.Args); err == nil {
		call.Args = data
	}

	d.mu.Lock()
	if d.dispatched[objective.key()] {
		d.mu.Unlock()
		return core.ToolResult{Call: call, Err: fmt.Errorf("objective already dispatched")}
	}
	if d.runs >= d.maxRuns {
		d.mu.Unlock()
		return core.ToolResult{Call: call, Err: fmt.Errorf("sub-agent budget exhausted")}
	}
	d.runs++
	d.dispatched[objective.key()] = true
	d.mu.Unlock()

	task := core.NewTask("worker",
		core.ConversationHistory{core.NewUserContent(objective.Prompt)},
		d.agent.cfg.MaxItersFor("worker"),
	)

	result, err := d.agent.Run(ctx, task)
	if err != nil {
		return core.ToolResult{Call: call, Err: err}
	}
	return core.ToolResult{
		Call: call,
		Payload: map[string]any{
			"objective": objective.Name,
			"answer":    result.Text,
		},
	}
}
