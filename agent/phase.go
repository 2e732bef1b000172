package agent

import (
	"context"

	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/executor"
)

// Plan is one iteration's execution plan. Reads run first and concurrently;
// writes are buffered behind them and run in issue order only after every
// read has completed, so a write never races a read it may depend on.
type Plan struct {
	Reads  []core.ToolCall
	Writes []core.ToolCall
}

// BuildPlan partitions a batch of calls by their write flag, preserving
// issue order within each side.
func BuildPlan(calls []core.ToolCall) Plan {
	var plan Plan
	for _, call := range calls {
		if call.IsWrite {
			plan.Writes = append(plan.Writes, call)
		} else {
			plan.Reads = append(plan.Reads, call)
		}
	}
	return plan
}

// runPlan executes a plan through the executor: the read batch first, then
// each write sequentially. Results come back in plan order (reads then
// writes), and the task phase advances to WritePhase when the first write
// executes.
func runPlan(ctx context.Context, exec *executor.Executor, task *core.Task, plan Plan) []core.ToolResult {
	results := exec.ExecuteBatch(ctx, plan.Reads)

	if len(plan.Writes) > 0 && task.Exec.Phase == core.ReadPhase {
		task.Exec.Phase = core.WritePhase
	}
	for _, write := range plan.Writes {
		results = append(results, exec.Execute(ctx, write))
	}
	return results
}

// FinalizePolicy decides, after an iteration's results are folded, whether
// the loop should stop issuing tools and produce the final answer.
type FinalizePolicy func(task *core.Task, results []core.ToolResult) bool

// DefaultFinalizePolicy finalizes once a write has succeeded. Reads alone
// never finalize; the model stops naturally by answering without tool calls.
func DefaultFinalizePolicy(task *core.Task, results []core.ToolResult) bool {
	for _, r := range results {
		if r.Call.IsWrite && r.OK() {
			return true
		}
	}
	return false
}
