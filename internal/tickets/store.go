package tickets

import (
	"strconv"
	"strings"
	"sync"

	"github.com/resolvehub/songra/internal/api"
)

// FilterAll disables a predicate.
const FilterAll = "all"

// Filter is a pure value: applying it never mutates the source collection and
// the same filter over the same tickets always yields the same result.
type Filter struct {
	Status   string
	Category string
	Urgency  string
	Query    string
}

func NewFilter() Filter {
	return Filter{Status: FilterAll, Category: FilterAll, Urgency: FilterAll}
}

// Matches is the conjunction of the four predicates. The free-text query is a
// case-insensitive substring test against id, last message, phone and
// category, any one of which is enough.
func (f Filter) Matches(t api.Ticket) bool {
	if f.Status != "" && f.Status != FilterAll && string(t.Status) != f.Status {
		return false
	}
	if f.Category != "" && f.Category != FilterAll && string(t.Category) != f.Category {
		return false
	}
	if f.Urgency != "" && f.Urgency != FilterAll && string(t.Urgency) != f.Urgency {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strconv.FormatInt(t.ID, 10), q) &&
			!strings.Contains(strings.ToLower(t.LastMessage), q) &&
			!strings.Contains(strings.ToLower(t.UserPhone), q) &&
			!strings.Contains(strings.ToLower(string(t.Category)), q) {
			return false
		}
	}
	return true
}

// ApplyFilter returns the tickets passing f, preserving their relative order.
func ApplyFilter(f Filter, ts []api.Ticket) []api.Ticket {
	var out []api.Ticket
	for _, t := range ts {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Store holds the latest ticket snapshot and dashboard stats. It is only
// written through ReplaceAll/SetStats; readers get copies.
type Store struct {
	mu      sync.RWMutex
	tickets []api.Ticket
	stats   api.Stats
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) ReplaceAll(ts []api.Ticket) {
	copied := make([]api.Ticket, len(ts))
	copy(copied, ts)

	s.mu.Lock()
	s.tickets = copied
	s.mu.Unlock()
}

func (s *Store) All() []api.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out
}

func (s *Store) Filtered(f Filter) []api.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ApplyFilter(f, s.tickets)
}

func (s *Store) Get(id int64) (api.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tickets {
		if t.ID == id {
			return t, true
		}
	}
	return api.Ticket{}, false
}

func (s *Store) SetStats(st api.Stats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

func (s *Store) Stats() api.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Clear drops all held state. Called on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.tickets = nil
	s.stats = api.Stats{}
	s.mu.Unlock()
}
