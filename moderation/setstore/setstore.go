// Named sets of strings (eg, word lists), used by the keyword text verifier.
package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		sets: make(map[string]map[string]bool),
	}
}

// NOTE: returns false (not an error) when the entire set isn't found
func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[name]
	if !ok {
		return false, nil
	}
	return set[val], nil
}

// Replaces the named set with the given values
func (s *MemSetStore) Put(name string, vals []string) {
	m := make(map[string]bool, len(vals))
	for _, val := range vals {
		m[val] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[name] = m
}

func (s *MemSetStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[name])
}

// Loads sets from a JSON file of the form {"set-name": ["val1", "val2"]}. Sets in the file replace any existing sets of the same name.
func (s *MemSetStore) LoadFromFileJSON(p string) error {
	raw, err := os.ReadFile(p)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return fmt.Errorf("parsing set JSON file %s: %w", p, err)
	}

	for name, l := range sets {
		s.Put(name, l)
	}
	return nil
}
