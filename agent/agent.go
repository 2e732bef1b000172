// Package agent drives the planning loop: the model proposes tool calls,
// the engine executes them under a read-before-write barrier, results are
// folded back into the conversation, and the loop repeats until the model
// answers in plain text or the iteration budget forces a final pass. Tasks
// that trip known failure signatures can be handed to scoped worker
// sub-agents with their own budgets.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/executor"
	"github.com/couchpilot/couchpilot/logging"
	"github.com/couchpilot/couchpilot/model"
	"github.com/couchpilot/couchpilot/tool"
)

// Options configure an Agent.
type Options struct {
	Logger       logging.Logger
	Notify       func(event core.ProgressEvent)
	Finalize     FinalizePolicy
	Instructions string
}

const defaultInstructions = "You are a household media assistant. Use the available tools to " +
	"answer questions about the library and to manage movies and series. Read before you " +
	"write, and confirm what you changed in your final answer."

// Agent runs tasks against a role-routed model with the registered toolset.
type Agent struct {
	cfg          config.Config
	registry     *tool.Registry
	exec         *executor.Executor
	router       *model.Router
	logger       logging.Logger
	finalize     FinalizePolicy
	instructions string
	dispatcher   *Dispatcher

	subMu       sync.Mutex
	subscribers map[int]func(event core.ProgressEvent)
	nextSub     int
}

// Subscribe registers a progress listener and returns its cancel function.
// Listeners must not block; slow consumers should buffer on their side.
func (a *Agent) Subscribe(fn func(event core.ProgressEvent)) (cancel func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subscribers, id)
	}
}

// Publish fans a progress event out to every subscriber. The executor's
// notify hook should point here so tool events reach task listeners.
func (a *Agent) Publish(event core.ProgressEvent) {
	a.subMu.Lock()
	fns := make([]func(core.ProgressEvent), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

// SetDispatcher attaches a sub-agent dispatcher. Set after construction
// because the dispatcher runs its workers through this same agent.
func (a *Agent) SetDispatcher(d *Dispatcher) { a.dispatcher = d }

// New builds an Agent.
func New(cfg config.Config, registry *tool.Registry, exec *executor.Executor, router *model.Router, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Logger:       logging.NewNoOpLogger(),
		Finalize:     DefaultFinalizePolicy,
		Instructions: defaultInstructions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{
		cfg:          cfg,
		registry:     registry,
		exec:         exec,
		router:       router,
		logger:       opts.Logger,
		finalize:     opts.Finalize,
		instructions: opts.Instructions,
		subscribers:  make(map[int]func(event core.ProgressEvent)),
	}
	if opts.Notify != nil {
		a.Subscribe(opts.Notify)
	}
	return a
}

// Result is the outcome of one task run.
type Result struct {
	Text       string
	History    core.ConversationHistory
	Iterations int
	ToolCalls  int
}

// Run executes a task to completion. Routing failures surface before the
// loop starts; everything after that is absorbed into tool results or the
// provider fallback chain, so a started task always produces an answer or a
// context error.
func (a *Agent) Run(ctx context.Context, task *core.Task) (*Result, error) {
	handles, err := a.router.ResolveAll(task.Role)
	if err != nil {
		return nil, err
	}

	logger := a.logger
	if el, ok := logger.(*logging.EngineLogger); ok {
		logger = el.WithTask(task.ID)
	}

	result := &Result{}
	tools := a.toolDefinitions()

	for task.Exec.Iteration < task.MaxIters {
		resp, err := a.generate(ctx, handles, model.Request{
			Instructions: a.instructions,
			Contents:     a.trimmed(task.History),
			Tools:        tools,
		})
		if err != nil {
			return nil, err
		}
		task.History = append(task.History, resp.Content)

		calls := resp.Content.FunctionCalls()
		logging.Iteration(logger, task.Exec.Iteration, task.MaxIters, task.Exec.Phase.String(), len(calls))

		if len(calls) == 0 {
			task.Exec.Phase = core.Done
			result.Text = resp.Content.Text()
			result.History = task.History
			result.Iterations = task.Exec.Iteration + 1
			a.emit("task_finished", task.ID)
			return result, nil
		}

		results := a.dispatch(ctx, task, calls)
		result.ToolCalls += len(results)
		task.Exec.Fold(results...)
		task.History = append(task.History, toolContent(results))
		task.Exec.Advance()

		// Worker tasks never spawn further workers.
		if a.dispatcher != nil && task.Role != "worker" {
			for _, obj := range a.dispatcher.Examine(results) {
				sub := a.dispatcher.Dispatch(ctx, obj)
				task.Exec.Fold(sub)
				task.History = append(task.History, core.NewUserContent(renderSubResult(sub)))
			}
		}

		if a.finalize(task, results) {
			break
		}
	}

	// Budget spent or finalize requested: one last pass with tools off so
	// the model must answer with what it has.
	task.Exec.Phase = core.Finalizing
	resp, err := a.generate(ctx, handles, model.Request{
		Instructions: a.instructions,
		Contents:     a.trimmed(task.History),
		Tools:        tools,
		ToolChoice:   model.ToolChoiceNone,
	})
	if err != nil {
		return nil, err
	}
	task.History = append(task.History, resp.Content)
	task.Exec.Phase = core.Done

	result.Text = resp.Content.Text()
	result.History = task.History
	result.Iterations = task.Exec.Iteration
	a.emit("task_finished", task.ID)
	return result, nil
}

// dispatch resolves model-issued calls and runs them under the phase plan.
// Calls that fail resolution become error results without touching any
// upstream.
func (a *Agent) dispatch(ctx context.Context, task *core.Task, fcs []core.FunctionCall) []core.ToolResult {
	var calls []core.ToolCall
	var rejected []core.ToolResult
	for _, fc := range fcs {
		call, err := a.registry.Resolve(fc)
		if err != nil {
			rejected = append(rejected, core.ToolResult{
				Call: core.ToolCall{ID: fc.ID, Name: fc.Name},
				Err:  err,
			})
			continue
		}
		calls = append(calls, call)
	}

	results := runPlan(ctx, a.exec, task, BuildPlan(calls))
	return append(results, rejected...)
}

// generate walks the provider fallback chain. Each provider gets the
// configured number of attempts before the next one is tried; the last
// error wins when the whole chain fails.
func (a *Agent) generate(ctx context.Context, handles []*model.Handle, req model.Request) (*model.Response, error) {
	attempts := a.cfg.LLM.ProviderRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for _, h := range handles {
		for attempt := 0; attempt < attempts; attempt++ {
			resp, err := h.Model.Generate(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			logging.ModelCall(a.logger, h.Provider, h.ModelID, 0, err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no model handles available")
	}
	return nil, lastErr
}

// toolDefinitions renders the registry for the model.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	decls := a.registry.Declarations()
	defs := make([]model.ToolDefinition, len(decls))
	for i, d := range decls {
		defs[i] = model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		}
	}
	return defs
}

// trimmed bounds the tool messages sent to the model, dropping the oldest
// tool contents first. Non-tool messages always survive.
func (a *Agent) trimmed(history core.ConversationHistory) []core.Content {
	max := a.cfg.Context.MaxToolMessages
	if max <= 0 {
		return history
	}
	toolCount := 0
	for _, c := range history {
		if c.Role == "tool" {
			toolCount++
		}
	}
	if toolCount <= max {
		return history
	}

	drop := toolCount - max
	out := make([]core.Content, 0, len(history))
	for _, c := range history {
		if c.Role == "tool" && drop > 0 {
			drop--
			continue
		}
		out = append(out, c)
	}
	return out
}

func (a *Agent) emit(kind, detail string) {
	a.Publish(core.NewProgressEvent(kind, detail))
}

// renderSubResult phrases a sub-agent outcome as a plain status note so any
// provider can carry it in the conversation.
func renderSubResult(r core.ToolResult) string {
	if r.Err != nil {
		return fmt.Sprintf("[background helper] could not complete its follow-up: %v", r.Err)
	}
	payload, _ := r.Payload.(map[string]any)
	return fmt.Sprintf("[background helper] %v: %v", payload["objective"], payload["answer"])
}

// toolContent folds a batch of results into one tool-role message.
func toolContent(results []core.ToolResult) core.Content {
	content := core.Content{Role: "tool"}
	for _, r := range results {
		content.Parts = append(content.Parts, core.FunctionResponsePart{FunctionResponse: r.Response()})
	}
	return content
}
