package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process store, lost on restart and not shared between replicas.
type MemLabelStore struct {
	entries *expirable.LRU[string, []string]
}

var _ LabelStore = (*MemLabelStore)(nil)

func NewMemLabelStore(capacity int, ttl time.Duration) *MemLabelStore {
	return &MemLabelStore{
		entries: expirable.NewLRU[string, []string](capacity, nil, ttl),
	}
}

func (s *MemLabelStore) Lookup(ctx context.Context, url string) ([]string, bool, error) {
	labels, ok := s.entries.Get(entryKey(url))
	if !ok {
		return nil, false, nil
	}
	return cloneLabels(labels), true, nil
}

func (s *MemLabelStore) Remember(ctx context.Context, url string, labels []string) error {
	s.entries.Add(entryKey(url), cloneLabels(labels))
	return nil
}

func (s *MemLabelStore) Forget(ctx context.Context, url string) error {
	s.entries.Remove(entryKey(url))
	return nil
}

func (s *MemLabelStore) Len() int {
	return s.entries.Len()
}
