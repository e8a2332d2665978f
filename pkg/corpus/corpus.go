package corpus

import (
	"sync"
)

// Entry records that seed produced a finding for an operation.
type Entry struct {
	Operation string `json:"operation"`
	Seed      uint64 `json:"seed"`
}

// Store is the regression corpus. Entries are only ever added; an entry that
// stops reproducing stays in the store.
type Store interface {
	// Entries returns the entries of operation in the order they were added.
	Entries(operation string) []Entry
	// Append adds entry and reports whether it was new.
	Append(entry Entry) (bool, error)
	Flush() error
	Close() error
	Len() int
}

// index is the in-memory view shared by both stores.
type index struct {
	mu          sync.RWMutex
	byOperation map[string][]Entry
	seen        map[Entry]struct{}
}

func newIndex() *index {
	return &index{
		byOperation: make(map[string][]Entry),
		seen:        make(map[Entry]struct{}),
	}
}

// add must be called with mu held for writing.
func (i *index) add(entry Entry) bool {
	if _, ok := i.seen[entry]; ok {
		return false
	}
	i.seen[entry] = struct{}{}
	i.byOperation[entry.Operation] = append(i.byOperation[entry.Operation], entry)
	return true
}

func (i *index) Entries(operation string) []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entries := i.byOperation[operation]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func (i *index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.seen)
}

// MemoryStore keeps the corpus in memory only.
type MemoryStore struct {
	*index
}

func NewMemory(entries ...Entry) *MemoryStore {
	s := &MemoryStore{index: newIndex()}
	for _, e := range entries {
		s.add(e)
	}
	return s
}

func (s *MemoryStore) Append(entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(entry), nil
}

func (s *MemoryStore) Flush() error { return nil }

func (s *MemoryStore) Close() error { return nil }
