package review

import (
	"errors"
	"sort"
	"sync"
)

// ErrDraftNotFound is returned when a draft ID is not in the store.
var ErrDraftNotFound = errors.New("draft not found")

// Store holds the drafts of one library workspace in memory. Persistence
// across restarts is deliberately out of scope.
//
// The store owns its drafts: every accessor returns a snapshot copy, and
// mutation happens only inside Resolve under the write lock, so concurrent
// handlers never share a mutable Draft.
type Store struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
}

// NewStore creates an empty draft store.
func NewStore() *Store {
	return &Store{
		drafts: make(map[string]*Draft),
	}
}

// Add registers a copy of the draft; the caller's pointer stays private.
func (s *Store) Add(d *Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID] = d.clone()
}

// Get returns a snapshot of the draft with the given ID.
func (s *Store) Get(id string) (*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return d.clone(), nil
}

// Resolve applies a resolution to the stored draft under the write lock
// and returns a snapshot of the result. A failed apply leaves the draft
// untouched.
func (s *Store) Resolve(id string, apply func(*Draft) error) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	if err := apply(d); err != nil {
		return nil, err
	}
	return d.clone(), nil
}

// List returns snapshots of all drafts, pending first, newest first within
// each group.
func (s *Store) List() []*Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pending() != out[j].Pending() {
			return out[i].Pending()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored drafts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
