package history

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry // newest first
	maxItems int
}

// NewMemoryStore creates a store capped at maxItems (DefaultMaxItems if <= 0).
func NewMemoryStore(maxItems int) *MemoryStore {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &MemoryStore{maxItems: maxItems}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	if e.Text == "" {
		return ErrEmptyText
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries) + 1
	if n > s.maxItems {
		n = s.maxItems
	}
	next := make([]Entry, 0, n)
	next = append(next, e)
	next = append(next, s.entries[:n-1]...)
	s.entries = next
	return nil
}

func (s *MemoryStore) List(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...), nil
}

func (s *MemoryStore) DeleteByText(_ context.Context, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Text == text {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}
