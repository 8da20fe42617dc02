package ebb

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig configures a Scheduler.
// Zero values produce sensible defaults; see field comments.
type SchedulerConfig struct {
	Params   Params           // zero fields → DefaultParams
	Store    Store            // nil → NewMemoryStore()
	Ledger   Ledger           // nil → NewMemoryLedger()
	Location *time.Location   // nil → time.Local; used for schedule date keys
	Clock    func() time.Time // nil → time.Now; used when a zero time is passed
	Logger   *zerolog.Logger  // nil → no logging
}

// Scheduler tracks per-topic memory strength, adapts topic parameters from
// review outcomes and schedules the next review of each topic.
//
// Reviews of the same topic are serialized by the Store; reviews of
// different topics and all read-only queries may run concurrently.
type Scheduler struct {
	mu     sync.RWMutex
	params Params

	store  Store
	ledger Ledger
	loc    *time.Location
	clock  func() time.Time
	log    zerolog.Logger
}

// NewScheduler creates a Scheduler from the given config.
// Zero-value fields are filled with defaults; invalid params return an error.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	params := cfg.Params.withDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		params: params,
		store:  cfg.Store,
		ledger: cfg.Ledger,
		loc:    cfg.Location,
		clock:  cfg.Clock,
		log:    zerolog.Nop(),
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.ledger == nil {
		s.ledger = NewMemoryLedger()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	}
	return s, nil
}

// Params returns the global defaults currently in effect.
func (s *Scheduler) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParams replaces the global defaults. Zero fields take DefaultParams
// values. Existing topic state keeps its own decay rate and difficulty.
func (s *Scheduler) SetParams(p Params) error {
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// Location returns the time zone used for schedule date keys.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

func (s *Scheduler) orNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}

// RecordReview applies a review with the given performance score in [0, 1]
// at reviewTime (zero → now) and returns the topic's updated state.
//
// The first review of a topic creates its state from the global params.
// Returns ErrInvalidInput for an empty topic id or out-of-range score, and
// ErrClockSkew if reviewTime precedes the topic's last review. On error no
// state is changed and nothing is appended to the ledger.
func (s *Scheduler) RecordReview(topicID string, score float64, reviewTime time.Time) (TopicState, error) {
	if err := validateReview(topicID, score); err != nil {
		return TopicState{}, err
	}
	reviewTime = s.orNow(reviewTime)
	params := s.Params()

	var ev ReviewEvent
	st, err := s.store.Update(topicID, func(st TopicState, ok bool) (TopicState, error) {
		next, e, err := applyReview(st, ok, topicID, score, reviewTime, params)
		if err != nil {
			return TopicState{}, err
		}
		if err := s.ledger.Append(e); err != nil {
			return TopicState{}, fmt.Errorf("append review of %q: %w", topicID, err)
		}
		ev = e
		return next, nil
	})
	if err != nil {
		return TopicState{}, err
	}

	s.log.Debug().
		Str("topic", topicID).
		Float64("score", score).
		Float64("strength_before", ev.StrengthBefore).
		Float64("strength_after", ev.StrengthAfter).
		Float64("difficulty", ev.DifficultyFactorAfter).
		Time("next_review", *st.NextReviewTime).
		Msg("review recorded")

	return st, nil
}

// PreviewReview returns the state RecordReview would produce, without
// changing the store or the ledger.
func (s *Scheduler) PreviewReview(topicID string, score float64, reviewTime time.Time) (TopicState, error) {
	if err := validateReview(topicID, score); err != nil {
		return TopicState{}, err
	}
	reviewTime = s.orNow(reviewTime)
	st, ok := s.store.Get(topicID)
	next, _, err := applyReview(st, ok, topicID, score, reviewTime, s.Params())
	return next, err
}

// Replay re-applies review events in review-time order, rebuilding topic
// state from an exported ledger. Only TopicID, ReviewTime and
// PerformanceScore are read from each event. Replay stops at the first
// failing event and returns how many were applied.
func (s *Scheduler) Replay(events []ReviewEvent) (int, error) {
	evs := make([]ReviewEvent, len(events))
	copy(evs, events)
	sortEvents(evs)

	for i, ev := range evs {
		if _, err := s.RecordReview(ev.TopicID, ev.PerformanceScore, ev.ReviewTime); err != nil {
			return i, fmt.Errorf("replay event %d: %w", i, err)
		}
	}
	return len(evs), nil
}

// validateReview checks the caller-supplied review inputs.
func validateReview(topicID string, score float64) error {
	if topicID == "" {
		return fmt.Errorf("%w: empty topic id", ErrInvalidInput)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: performance score %v outside [0, 1]", ErrInvalidInput, score)
	}
	return nil
}

// applyReview computes the post-review state and its ledger event.
func applyReview(st TopicState, ok bool, topicID string, score float64, at time.Time, p Params) (TopicState, ReviewEvent, error) {
	if !ok {
		st = newTopicState(topicID, p, at)
	}
	if at.Before(st.LastReviewTime) {
		return TopicState{}, ReviewEvent{}, fmt.Errorf("%w: topic %q reviewed at %s, last review %s",
			ErrClockSkew, topicID, at.Format(time.RFC3339), st.LastReviewTime.Format(time.RFC3339))
	}

	before := strengthAt(st, at)

	st.ReviewCount++
	st.LastReviewTime = at
	st.LastPerformance = score

	after := boost(before, p.ReviewBoost, score)
	st.DifficultyFactor = adaptDifficulty(st.DifficultyFactor, score)
	st.LastStrength = after

	next := at.Add(daysToDuration(daysUntil(after, p.MinStrength, st.DecayRate, st.DifficultyFactor)))
	st.NextReviewTime = &next

	ev := ReviewEvent{
		TopicID:               topicID,
		ReviewTime:            at,
		PerformanceScore:      score,
		StrengthBefore:        before,
		StrengthAfter:         after,
		DifficultyFactorAfter: st.DifficultyFactor,
	}
	return st, ev, nil
}

// Strength evaluates the decay model for a topic as if it had last been
// reviewed at lastReview with the given review count and performance.
// The topic's own decay rate, difficulty factor and last strength are used
// when it has state; otherwise the global defaults apply.
func (s *Scheduler) Strength(topicID string, lastReview time.Time, reviewCount int, performance float64, now time.Time) float64 {
	st := s.resolve(topicID)
	st.LastReviewTime = lastReview
	st.ReviewCount = reviewCount
	st.LastPerformance = performance
	return strengthAt(st, s.orNow(now))
}

// CurrentStrength returns the topic's memory strength at now (zero → the
// clock). A now before the last review is treated as the review instant.
// Returns ErrUnknownTopic if the topic has never been reviewed.
func (s *Scheduler) CurrentStrength(topicID string, now time.Time) (float64, error) {
	st, ok := s.store.Get(topicID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTopic, topicID)
	}
	return strengthAt(st, s.orNow(now)), nil
}

// NextReviewTime returns when a topic at currentStrength will decay to
// target. A zero target means the global MinStrength. If currentStrength is
// already at or below target the review is scheduled six hours out.
// The inversion uses decay_rate · difficulty_factor without the consolidation
// term applied by the decay model. Returns ErrUnknownTopic if the topic has
// never been reviewed.
func (s *Scheduler) NextReviewTime(topicID string, currentStrength, target float64, now time.Time) (time.Time, error) {
	if target == 0 {
		target = s.Params().MinStrength
	}
	if math.IsNaN(target) || target <= 0 || target > 1 {
		return time.Time{}, fmt.Errorf("%w: target strength %v outside (0, 1]", ErrInvalidInput, target)
	}
	if math.IsNaN(currentStrength) || currentStrength < 0 || currentStrength > 1 {
		return time.Time{}, fmt.Errorf("%w: strength %v outside [0, 1]", ErrInvalidInput, currentStrength)
	}
	st, ok := s.store.Get(topicID)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topicID)
	}
	days := daysUntil(currentStrength, target, st.DecayRate, st.DifficultyFactor)
	return s.orNow(now).Add(daysToDuration(days)), nil
}

// resolve returns the topic's state, or a fresh state seeded from the
// global params when it has none.
func (s *Scheduler) resolve(topicID string) TopicState {
	if st, ok := s.store.Get(topicID); ok {
		return st
	}
	return newTopicState(topicID, s.Params(), time.Time{})
}

// Topic returns a copy of the topic's state.
func (s *Scheduler) Topic(topicID string) (TopicState, bool) {
	return s.store.Get(topicID)
}

// Topics returns a copy of every topic's state, sorted by topic id.
func (s *Scheduler) Topics() []TopicState {
	return s.store.Snapshot()
}

// Events returns the topic's review history ordered by review time.
func (s *Scheduler) Events(topicID string) []ReviewEvent {
	return s.ledger.Events(topicID)
}

// AllEvents returns the full review history ordered by review time.
func (s *Scheduler) AllEvents() []ReviewEvent {
	return s.ledger.All()
}

// sortedTopicIDs returns the distinct ids in ascending order.
func sortedTopicIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
