package core

import "time"

// ProgressEvent is an ephemeral notification of a state transition inside a
// running task, consumed by the transport layer for user-facing status
// updates. Events are never persisted.
type ProgressEvent struct {
	Kind      string    `json:"kind"` // e.g. loop.iteration, tool.start, tool.finish
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProgressEvent stamps an event with the current UTC time.
func NewProgressEvent(kind, detail string) ProgressEvent {
	return ProgressEvent{Kind: kind, Detail: detail, Timestamp: time.Now().UTC()}
}
