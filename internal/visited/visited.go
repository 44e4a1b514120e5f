// Package visited tracks which URLs a mirror run has already accepted.
package visited

import "sync"

// State is the completion state of a claimed URL.
type State int

const (
	// StateUnknown means the URL has never been claimed.
	StateUnknown State = iota
	// StatePending means the URL was claimed and its work has not finished.
	StatePending
	// StateDone means the claimant reported completion.
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Set is a concurrent-safe registry of claimed URLs. Entries are never removed.
type Set struct {
	mu    sync.RWMutex
	items map[string]State
}

// New creates an empty Set.
func New() *Set {
	return &Set{
		items: make(map[string]State),
	}
}

// TryClaim inserts url as pending if it is absent.
// It returns true only for the first caller for a given url.
func (s *Set) TryClaim(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.items[url]; found {
		return false
	}
	s.items[url] = StatePending
	return true
}

// MarkDone moves a pending url to done. It returns false when the url was
// never claimed or is already done.
func (s *Set) MarkDone(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items[url] != StatePending {
		return false
	}
	s.items[url] = StateDone
	return true
}

// State returns the recorded state for url.
func (s *Set) State(url string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[url]
}

// Keys returns the claimed URLs in no particular order.
func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for url := range s.items {
		keys = append(keys, url)
	}
	return keys
}

// Len returns the number of claimed URLs.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
