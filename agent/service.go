package agent

import (
	"context"

	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/conversation"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/progress"
)

// Service is the conversation-facing entry point: it loads history, runs a
// task for the incoming message, paces progress updates, and persists the
// updated transcript.
type Service struct {
	agent *Agent
	store *conversation.InMemoryStore
	cfg   config.Config
}

// NewService builds a Service over the agent and conversation store.
func NewService(agent *Agent, store *conversation.InMemoryStore, cfg config.Config) *Service {
	return &Service{agent: agent, store: store, cfg: cfg}
}

// Reply is the outcome of one handled message.
type Reply struct {
	Text       string
	Iterations int
	ToolCalls  int
}

// Turn is one in-flight handled message. Updates streams paced progress
// while the task runs and is closed when it finishes; Wait blocks for the
// reply. Callers that do not care about progress may call Wait directly.
type Turn struct {
	updates <-chan progress.Update
	done    chan struct{}
	reply   *Reply
	err     error
}

// Updates returns the progress stream for this turn.
func (t *Turn) Updates() <-chan progress.Update { return t.updates }

// Wait blocks until the task finishes and returns the reply. The updates
// channel is closed by the time Wait returns.
func (t *Turn) Wait() (*Reply, error) {
	<-t.done
	return t.reply, t.err
}

// HandleMessage starts one user message through the engine under the given
// role. The task runs in the background so the caller can drain the turn's
// progress stream while it executes; store lookups fail synchronously.
func (s *Service) HandleMessage(ctx context.Context, conversationID, role, text string) (*Turn, error) {
	conv, err := s.store.Get(conversationID)
	if err != nil {
		return nil, err
	}

	history := append(conv.History, core.NewUserContent(text))
	task := core.NewTask(role, history, s.cfg.MaxItersFor(role))

	broadcaster := progress.New(s.cfg.UX)
	cancel := s.agent.Subscribe(func(ev core.ProgressEvent) {
		broadcaster.Notify(ev)
	})

	turn := &Turn{updates: broadcaster.Updates(), done: make(chan struct{})}
	go func() {
		defer close(turn.done)
		defer broadcaster.Close()
		defer cancel()

		result, err := s.agent.Run(ctx, task)
		if err != nil {
			turn.err = err
			return
		}
		if err := s.store.Replace(conversationID, result.History); err != nil {
			turn.err = err
			return
		}
		turn.reply = &Reply{
			Text:       result.Text,
			Iterations: result.Iterations,
			ToolCalls:  result.ToolCalls,
		}
	}()
	return turn, nil
}
