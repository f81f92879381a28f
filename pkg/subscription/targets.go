package subscription

import (
	"sort"
	"sync"
)

// targetSet is the desired set of subscribed application ids. It is kept
// across reconnects and replayed on every fresh connection.
type targetSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newTargetSet() *targetSet {
	return &targetSet{ids: make(map[string]struct{})}
}

// add inserts ids and returns those that were not present, in input order
func (s *targetSet) add(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		added = append(added, id)
	}
	return added
}

// remove deletes ids and returns those that were present, in input order
func (s *targetSet) remove(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok {
			continue
		}
		delete(s.ids, id)
		removed = append(removed, id)
	}
	return removed
}

func (s *targetSet) contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *targetSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// snapshot returns the ids sorted
func (s *targetSet) snapshot() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}
