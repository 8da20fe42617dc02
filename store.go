package ebb

import (
	"sort"
	"sync"
)

// Store holds the per-topic memory state. Implementations must serialize
// Update calls for the same topic while letting different topics proceed
// in parallel, and must hand out copies so readers never observe a
// partially applied update.
type Store interface {
	// Get returns a copy of the topic's state and whether it exists.
	Get(topicID string) (TopicState, bool)

	// Update runs fn under the topic's write lock. fn receives the current
	// state (zero value and false when the topic has none). If fn returns an
	// error the stored state is left untouched.
	Update(topicID string, fn func(st TopicState, ok bool) (TopicState, error)) (TopicState, error)

	// Snapshot returns copies of every topic's state, sorted by topic id.
	Snapshot() []TopicState

	// Replace swaps the whole contents for states. Used when restoring
	// saved state.
	Replace(states []TopicState)
}

// topicSlot guards one topic's state. ok is false for a slot reserved by an
// Update whose fn has not yet succeeded.
type topicSlot struct {
	mu    sync.RWMutex
	state TopicState
	ok    bool
}

// MemoryStore is an in-process Store with a reader-writer lock per topic.
type MemoryStore struct {
	mu     sync.RWMutex
	topics map[string]*topicSlot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{topics: make(map[string]*topicSlot)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) slot(topicID string) *topicSlot {
	m.mu.RLock()
	s := m.topics[topicID]
	m.mu.RUnlock()
	return s
}

// Get implements Store.
func (m *MemoryStore) Get(topicID string) (TopicState, bool) {
	s := m.slot(topicID)
	if s == nil {
		return TopicState{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return TopicState{}, false
	}
	return s.state.clone(), true
}

// Update implements Store.
func (m *MemoryStore) Update(topicID string, fn func(TopicState, bool) (TopicState, error)) (TopicState, error) {
	s := m.slot(topicID)
	if s == nil {
		m.mu.Lock()
		s = m.topics[topicID]
		if s == nil {
			s = &topicSlot{}
			m.topics[topicID] = s
		}
		m.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current TopicState
	if s.ok {
		current = s.state.clone()
	}
	next, err := fn(current, s.ok)
	if err != nil {
		return TopicState{}, err
	}
	s.state = next.clone()
	s.ok = true
	return next, nil
}

// Snapshot implements Store.
func (m *MemoryStore) Snapshot() []TopicState {
	m.mu.RLock()
	slots := make([]*topicSlot, 0, len(m.topics))
	for _, s := range m.topics {
		slots = append(slots, s)
	}
	m.mu.RUnlock()

	out := make([]TopicState, 0, len(slots))
	for _, s := range slots {
		s.mu.RLock()
		if s.ok {
			out = append(out, s.state.clone())
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out
}

// Replace implements Store.
func (m *MemoryStore) Replace(states []TopicState) {
	topics := make(map[string]*topicSlot, len(states))
	for _, st := range states {
		topics[st.TopicID] = &topicSlot{state: st.clone(), ok: true}
	}
	m.mu.Lock()
	m.topics = topics
	m.mu.Unlock()
}

// Len returns the number of topics with state.
func (m *MemoryStore) Len() int {
	return len(m.Snapshot())
}
