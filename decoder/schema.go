package decoder

import (
	"sort"
	"sync"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/hedeqiang/fathom/event"
)

// Schema maps event signature hashes (topic0) to ABI event definitions.
type Schema struct {
	mu     sync.RWMutex
	events map[event.Hash]gethabi.Event
	byName map[string]event.Hash
}

// NewSchema creates an empty event schema registry.
func NewSchema() *Schema {
	return &Schema{
		events: make(map[event.Hash]gethabi.Event),
		byName: make(map[string]event.Hash),
	}
}

// Add registers an event definition. A later event with the same name
// replaces the name lookup but both stay decodable by topic.
func (s *Schema) Add(ev gethabi.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	s.byName[ev.Name] = ev.ID
}

// Lookup finds the event definition for the given topic0 hash.
func (s *Schema) Lookup(sigHash event.Hash) (gethabi.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[sigHash]
	return ev, ok
}

// Topic returns the topic0 hash of the named event.
func (s *Schema) Topic(name string) (event.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byName[name]
	return h, ok
}

// Names returns the registered event names, sorted.
func (s *Schema) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
