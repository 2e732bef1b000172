package media

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// PrefsStore is a Preferences implementation backed by an optional YAML
// file. With an empty path it is purely in-memory.
type PrefsStore struct {
	mu     sync.Mutex
	path   string
	values map[string]any
}

// NewPrefsStore loads preferences from path when it exists. A missing file
// starts empty.
func NewPrefsStore(path string) (*PrefsStore, error) {
	s := &PrefsStore{path: path, values: make(map[string]any)}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	return s, nil
}

// Get implements Preferences.
func (s *PrefsStore) Get(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Set implements Preferences. With a file path configured the store is
// rewritten on every set; preference writes are rare.
func (s *PrefsStore) Set(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value

	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
