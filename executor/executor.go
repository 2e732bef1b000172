// Package executor dispatches tool calls through the engine's reliability
// stack: schema-validated arguments, per-family circuit breaking, two-level
// concurrency limits, deadline enforcement, retry with exponential backoff,
// duplicate hedging for slow reads, and a coalescing TTL cache. A batch of
// calls from one model turn executes concurrently with duplicates folded
// into a single upstream call; failures surface as error-carrying results,
// never as batch-level errors.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchpilot/couchpilot/breaker"
	"github.com/couchpilot/couchpilot/cache"
	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/limiter"
	"github.com/couchpilot/couchpilot/logging"
	"github.com/couchpilot/couchpilot/tool"
)

// Options configure an Executor.
type Options struct {
	Logger logging.Logger

	// Notify, when set, receives a progress event for each call start and
	// completion.
	Notify func(event core.ProgressEvent)

	// Clock substitutes the time source in tests.
	Clock func() time.Time
}

// Executor runs tool calls. Safe for concurrent use.
type Executor struct {
	cfg      config.Config
	invoker  tool.Invoker
	registry *tool.Registry
	cache    *cache.Cache
	refs     *cache.RefStore
	breakers *breaker.Registry
	limits   *limiter.Limiter
	logger   logging.Logger
	notify   func(event core.ProgressEvent)
	clock    func() time.Time
}

// New builds an Executor over the given registry and invoker. The registry
// supplies declarations and argument validation; the invoker performs the
// actual calls, which in production is the registry itself.
func New(cfg config.Config, registry *tool.Registry, invoker tool.Invoker, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Logger: logging.NewNoOpLogger(),
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if invoker == nil {
		invoker = registry
	}

	return &Executor{
		cfg:      cfg,
		invoker:  invoker,
		registry: registry,
		cache:    cache.New(),
		refs:     cache.NewRefStore(time.Duration(cfg.Cache.MediumTTLSec) * time.Second),
		breakers: breaker.NewRegistry(cfg.Circuit.OpenAfterFailures, time.Duration(cfg.Circuit.OpenForMs)*time.Millisecond),
		limits: limiter.New(
			cfg.Tools.Parallelism,
			time.Duration(cfg.Tools.AcquireWaitMs)*time.Millisecond,
			cfg.FamilyParallelism,
		),
		logger: opts.Logger,
		notify: opts.Notify,
		clock:  opts.Clock,
	}
}

// Refs exposes the store holding full payloads of truncated results so the
// cache-family tools can page through them.
func (e *Executor) Refs() *cache.RefStore { return e.refs }

// SetNotify replaces the progress sink. The agent's event fan-out is built
// after the executor, so assembly wires the sink here once both exist; set
// it before any call runs.
func (e *Executor) SetNotify(fn func(event core.ProgressEvent)) { e.notify = fn }

// CacheKey derives the cache identity of a call from its tool name and a
// canonical rendering of its arguments. Key order in the raw JSON does not
// affect the key.
func CacheKey(call core.ToolCall) uint64 {
	h := fnv.New64a()
	h.Write([]byte(call.Name))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(call.Args)))
	return h.Sum64()
}

// canonicalJSON renders raw JSON with object keys sorted recursively.
func canonicalJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return renderCanonical(v)
}

func renderCanonical(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			kb, _ := json.Marshal(k)
			out += string(kb) + ":" + renderCanonical(t[k])
		}
		return out + "}"
	case []any:
		out := "["
		for i, item := range t {
			if i > 0 {
				out += ","
			}
			out += renderCanonical(item)
		}
		return out + "]"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// ttlFor maps a volatility class to its retention TTL.
func (e *Executor) ttlFor(v core.Volatility) time.Duration {
	switch v {
	case core.VolatilityShort:
		return time.Duration(e.cfg.Cache.ShortTTLSec) * time.Second
	case core.VolatilityMedium:
		return time.Duration(e.cfg.Cache.MediumTTLSec) * time.Second
	default:
		return 0
	}
}

// ExecuteBatch runs all calls concurrently and returns one result per call
// in the input order. Calls that share a cache key within the batch are
// executed once; every requester receives the shared outcome under its own
// call id. Individual failures are carried inside the result.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []core.ToolCall) []core.ToolResult {
	results := make([]core.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call core.ToolCall) {
			defer wg.Done()
			results[i] = e.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

// Execute runs one call through the full stack and returns its result. The
// returned result carries the error instead of failing the caller.
func (e *Executor) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	start := e.clock()
	e.emit("tool_started", call.Name)

	payload, hit, err := e.run(ctx, call)
	latency := e.clock().Sub(start)

	result := core.ToolResult{
		Call:     call,
		Payload:  payload,
		Err:      err,
		Latency:  latency,
		CacheHit: hit,
	}

	logging.ToolCall(e.logger, call.Name, call.Family, latency, hit, err)
	if err != nil {
		e.emit("tool_failed", call.Name)
	} else {
		e.emit("tool_finished", call.Name)
	}
	return result
}

func (e *Executor) emit(kind, detail string) {
	if e.notify != nil {
		e.notify(core.NewProgressEvent(kind, detail))
	}
}

// run decides the path for a call. Writes bypass the cache and hedging and
// get a single attempt; reads coalesce on their cache key and retry.
func (e *Executor) run(ctx context.Context, call core.ToolCall) (any, bool, error) {
	if call.IsWrite {
		payload, err := e.attempt(ctx, call, false)
		if err == nil {
			// A write routinely changes what sibling read tools return, so
			// drop all cached reads rather than guessing which keys are stale.
			e.cache.Flush()
		}
		return payload, false, err
	}

	ttl := e.ttlFor(call.Volatility)
	value, hit, err := e.cache.GetOrCompute(ctx, CacheKey(call), ttl, func(ctx context.Context) (any, error) {
		payload, err := e.attempt(ctx, call, true)
		if err != nil {
			return nil, err
		}
		return e.truncate(call, payload), nil
	})
	return value, hit, err
}

// attempt runs the call with breaker admission, retry and optional hedging.
func (e *Executor) attempt(ctx context.Context, call core.ToolCall, hedge bool) (any, error) {
	br := e.breakers.Get(call.Family)
	adm := br.TryAcquire()
	if adm == breaker.Rejected {
		return nil, &core.CircuitOpenError{Family: call.Family}
	}
	// A half-open probe runs exactly once so a failing upstream is touched
	// by a single call, not a retry burst.
	retries := uint64(e.cfg.Tools.RetryMax)
	if adm == breaker.Trial {
		retries = 0
		hedge = false
	}

	var payload any
	op := func() error {
		var err error
		if hedge && e.cfg.Tools.HedgeDelayMs > 0 {
			payload, err = e.hedged(ctx, call)
		} else {
			payload, err = e.attemptOnce(ctx, call)
		}
		if err == nil {
			return nil
		}
		if core.IsValidation(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(e.cfg.Tools.BackoffBaseMs) * time.Millisecond
	bo.MaxInterval = time.Duration(e.cfg.Tools.BackoffCapMs) * time.Millisecond

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))
	if err != nil {
		if !core.IsValidation(err) {
			br.RecordFailure()
		}
		return nil, err
	}
	br.RecordSuccess()
	return payload, nil
}

// attemptOnce performs a single upstream call under permits and deadline.
func (e *Executor) attemptOnce(ctx context.Context, call core.ToolCall) (any, error) {
	release, err := e.limits.Acquire(ctx, call.Family)
	if err != nil {
		return nil, err
	}
	defer release()

	timeout := e.cfg.ToolTimeout(call.Name, call.Family)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := e.invoker.Invoke(callCtx, call)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &core.TimeoutError{Op: call.Name, Timeout: timeout}
		}
		return nil, err
	}
	return payload, nil
}

// hedged races the primary attempt against a duplicate started after the
// hedge delay. The first completed attempt wins and the other is cancelled.
func (e *Executor) hedged(ctx context.Context, call core.ToolCall) (any, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}
	results := make(chan outcome, 2)

	launch := func() {
		payload, err := e.attemptOnce(raceCtx, call)
		results <- outcome{payload: payload, err: err}
	}

	go launch()

	delay := time.Duration(e.cfg.Tools.HedgeDelayMs) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case first := <-results:
		return first.payload, first.err
	case <-timer.C:
		go launch()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case first := <-results:
		return first.payload, first.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// truncate caps oversized list payloads before they reach the model. The
// full list is parked in the ref store and the result carries a reference
// id plus the omitted count, so the model can page further with the
// cache-family tools instead of receiving a giant blob.
func (e *Executor) truncate(call core.ToolCall, payload any) any {
	max := e.cfg.Tools.MaxListItems
	if max <= 0 {
		return payload
	}
	items, ok := payload.([]any)
	if !ok || len(items) <= max {
		return payload
	}

	ref := e.refs.Store(items)
	return map[string]any{
		"items":         items[:max],
		"total":         len(items),
		"items_omitted": len(items) - max,
		"result_ref":    ref,
		"note":          fmt.Sprintf("showing first %d of %d items; fetch more via fetch_cached_result with result_ref", max, len(items)),
	}
}
