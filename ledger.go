package ebb

import (
	"sort"
	"sync"
)

// Ledger is the append-only history of review events.
type Ledger interface {
	// Append records ev. Callers append a topic's events in review-time
	// order.
	Append(ev ReviewEvent) error

	// Events returns the topic's events ordered by review time.
	Events(topicID string) []ReviewEvent

	// All returns every event, ordered by review time then topic id.
	All() []ReviewEvent

	// Replace swaps the whole history for events. Used when restoring
	// saved state.
	Replace(events []ReviewEvent)
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	byTopic map[string][]ReviewEvent
	count   int
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byTopic: make(map[string][]ReviewEvent)}
}

var _ Ledger = (*MemoryLedger)(nil)

// Append implements Ledger.
func (l *MemoryLedger) Append(ev ReviewEvent) error {
	l.mu.Lock()
	l.byTopic[ev.TopicID] = append(l.byTopic[ev.TopicID], ev)
	l.count++
	l.mu.Unlock()
	return nil
}

// Events implements Ledger.
func (l *MemoryLedger) Events(topicID string) []ReviewEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	evs := l.byTopic[topicID]
	out := make([]ReviewEvent, len(evs))
	copy(out, evs)
	return out
}

// All implements Ledger.
func (l *MemoryLedger) All() []ReviewEvent {
	l.mu.RLock()
	out := make([]ReviewEvent, 0, l.count)
	for _, evs := range l.byTopic {
		out = append(out, evs...)
	}
	l.mu.RUnlock()
	sortEvents(out)
	return out
}

// Replace implements Ledger.
func (l *MemoryLedger) Replace(events []ReviewEvent) {
	byTopic := make(map[string][]ReviewEvent)
	for _, ev := range events {
		byTopic[ev.TopicID] = append(byTopic[ev.TopicID], ev)
	}
	for _, evs := range byTopic {
		sortEvents(evs)
	}
	l.mu.Lock()
	l.byTopic = byTopic
	l.count = len(events)
	l.mu.Unlock()
}

// Len returns the number of recorded events.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// sortEvents orders events by review time, then topic id. The sort is
// stable so same-instant reviews of one topic keep their append order.
func sortEvents(evs []ReviewEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].ReviewTime.Equal(evs[j].ReviewTime) {
			return evs[i].ReviewTime.Before(evs[j].ReviewTime)
		}
		return evs[i].TopicID < evs[j].TopicID
	})
}
