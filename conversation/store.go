// Package conversation persists per-conversation history between tasks so a
// follow-up question carries the context of earlier turns.
package conversation

import (
	"sync"
	"time"

	"github.com/couchpilot/couchpilot/core"
)

// Conversation is one household chat thread.
type Conversation struct {
	ID        string
	History   core.ConversationHistory
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone deep-copies the conversation shell; history contents are immutable
// once appended.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.History = make(core.ConversationHistory, len(c.History))
	copy(out.History, c.History)
	return &out
}

// InMemoryStore is a volatile conversation store backed by a process-local
// map. Safe for concurrent access. Returned conversations are clones, so
// callers cannot mutate stored state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	now           func() time.Time
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*Conversation),
		now:           time.Now,
	}
}

// Get returns an existing conversation (clone) or creates one lazily.
func (s *InMemoryStore) Get(conversationID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		return conv.Clone(), nil
	}
	return s.createLocked(conversationID).Clone(), nil
}

// Append adds contents to a conversation, creating it if needed.
func (s *InMemoryStore) Append(conversationID string, contents ...core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = s.createLocked(conversationID)
	}
	conv.History = append(conv.History, contents...)
	conv.UpdatedAt = s.now()
	return nil
}

// Replace overwrites a conversation's history, creating it if needed. Used
// after a task run to persist the full updated transcript.
func (s *InMemoryStore) Replace(conversationID string, history core.ConversationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = s.createLocked(conversationID)
	}
	conv.History = make(core.ConversationHistory, len(history))
	copy(conv.History, history)
	conv.UpdatedAt = s.now()
	return nil
}

// Delete removes a conversation.
func (s *InMemoryStore) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

func (s *InMemoryStore) createLocked(conversationID string) *Conversation {
	conv := &Conversation{
		ID:        conversationID,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	s.conversations[conversationID] = conv
	return conv
}
