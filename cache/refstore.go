package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RefStore retains full tool payloads under opaque reference ids so that
// truncated results handed to the model can still be paged or projected
// later through the cache-family tools.
type RefStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]refEntry
	now     func() time.Time
}

type refEntry struct {
	items     []any
	expiresAt time.Time
}

// NewRefStore returns a RefStore whose references expire after ttl.
func NewRefStore(ttl time.Duration) *RefStore {
	return &RefStore{
		ttl:     ttl,
		entries: make(map[string]refEntry),
		now:     time.Now,
	}
}

// Store saves the full item list and returns a new reference id.
func (s *RefStore) Store(items []any) string {
	id := "ref_" + uuid.NewString()[:8]
	s.mu.Lock()
	s.entries[id] = refEntry{items: items, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return id
}

// Fetch returns a slice of the referenced items starting at offset, at most
// limit items, optionally projected down to the named fields. A limit of 0
// means no bound. Unknown or expired references return an error.
func (s *RefStore) Fetch(id string, offset, limit int, fields []string) ([]any, int, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.now().After(e.expiresAt) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("unknown or expired result reference %q", id)
	}

	total := len(e.items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]any, 0, end-offset)
	for _, item := range e.items[offset:end] {
		page = append(page, project(item, fields))
	}
	return page, total, nil
}

// project narrows a map item to the requested fields. Non-map items and an
// empty field list pass through unchanged.
func project(item any, fields []string) any {
	if len(fields) == 0 {
		return item
	}
	m, ok := item.(map[string]any)
	if !ok {
		return item
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}
