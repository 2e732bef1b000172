package core

// Phase tracks where a task is in the read-before-write discipline.
type Phase int

const (
	// ReadPhase dispatches read-classified calls; writes are buffered.
	ReadPhase Phase = iota
	// WritePhase releases buffered writes after all reads resolved.
	WritePhase
	// Finalizing produces the answer; no further tool access.
	Finalizing
	// Done is terminal.
	Done
)

// String returns a log-friendly phase name.
func (p Phase) String() string {
	switch p {
	case ReadPhase:
		return "read"
	case WritePhase:
		return "write"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// ExecutionContext is the mutable per-task state of a planning loop run. It
// is owned exclusively by its Task and must never be shared across tasks;
// no internal locking is performed.
type ExecutionContext struct {
	Iteration int
	Phase     Phase
	Results   []ToolResult
	Finalize  bool // set once the finalize shortcut has fired
}

// Advance increments the iteration counter. The counter is monotonically
// non-decreasing; callers enforce the task's configured maximum.
func (ec *ExecutionContext) Advance() int {
	ec.Iteration++
	return ec.Iteration
}

// Fold appends resolved tool results to the accumulated context.
func (ec *ExecutionContext) Fold(results ...ToolResult) {
	ec.Results = append(ec.Results, results...)
}

// RecentResults returns up to max of the newest accumulated results, oldest
// dropped first.
func (ec *ExecutionContext) RecentResults(max int) []ToolResult {
	if max <= 0 || len(ec.Results) <= max {
		return ec.Results
	}
	return ec.Results[len(ec.Results)-max:]
}

// Task is one user request driven to completion by the planning loop.
type Task struct {
	ID       string
	Role     string // model role: chat, smart, worker
	History  ConversationHistory
	MaxIters int
	Exec     *ExecutionContext
}

// NewTask constructs a task with a fresh execution context.
func NewTask(role string, history ConversationHistory, maxIters int) *Task {
	return &Task{
		ID:       NewID(),
		Role:     role,
		History:  history,
		MaxIters: maxIters,
		Exec:     &ExecutionContext{Phase: ReadPhase},
	}
}
