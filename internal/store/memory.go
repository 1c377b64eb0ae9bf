package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	order   []string
}

// NewMemory keeps reports in process memory.
func NewMemory(opts Options) ReportStore {
	return &memoryStore{opts: opts, now: time.Now, entries: make(map[string]Entry)}
}

func (s *memoryStore) Save(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		return errors.New("store: entry id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry = stamp(entry, s.opts.TTL, s.now())
	if _, exists := s.entries[entry.ID]; exists {
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == entry.ID })
	}
	s.entries[entry.ID] = cloneEntry(entry)
	s.order = append(s.order, entry.ID)
	s.pruneLocked()
	return nil
}

func (s *memoryStore) Latest(_ context.Context) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	if len(s.order) == 0 {
		return Entry{}, false, nil
	}
	return cloneEntry(s.entries[s.order[len(s.order)-1]]), true, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *memoryStore) Size(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return int64(len(s.order)), nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}

// pruneLocked drops expired entries and trims the history to its bound.
func (s *memoryStore) pruneLocked() {
	now := s.now()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.entries[id].Expired(now) {
			delete(s.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	if s.opts.History > 0 && len(s.order) > s.opts.History {
		drop := len(s.order) - s.opts.History
		for _, id := range s.order[:drop] {
			delete(s.entries, id)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
}
