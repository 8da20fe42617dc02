package ebb

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ScheduleEntry is one projected review slot.
type ScheduleEntry struct {
	TopicID           string    `json:"topic_id"`
	ReviewTime        time.Time `json:"review_time"`
	EstimatedStrength float64   `json:"estimated_strength"`
}

// Schedule maps a calendar date ("2006-01-02" in the scheduler's location)
// to the review slots falling on it, ordered by time then topic id.
type Schedule map[string][]ScheduleEntry

// Dates returns the schedule's date keys in ascending order.
func (sc Schedule) Dates() []string {
	dates := make([]string, 0, len(sc))
	for d := range sc {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Len returns the total number of slots.
func (sc Schedule) Len() int {
	n := 0
	for _, entries := range sc {
		n += len(entries)
	}
	return n
}

// GenerateSchedule projects review slots for the given topics over
// [now, now+daysAhead days] (now zero → the clock).
//
// Each topic starts from its cached next review (an overdue one is placed
// at now), or from a freshly computed one when it has no state. Later slots
// assume every review restores the topic to the global initial strength.
// daysAhead is capped at the longest schedulable interval (36500 days).
// Returns ErrInvalidInput for a negative daysAhead; no topics yields an
// empty Schedule.
func (s *Scheduler) GenerateSchedule(topicIDs []string, daysAhead int, now time.Time) (Schedule, error) {
	if daysAhead < 0 {
		return nil, fmt.Errorf("%w: days ahead %d is negative", ErrInvalidInput, daysAhead)
	}
	now = s.orNow(now)
	daysAhead = min(daysAhead, maxInterval)
	horizon := now.Add(time.Duration(daysAhead) * day)
	params := s.Params()

	sched := Schedule{}
	for _, id := range sortedTopicIDs(topicIDs) {
		for _, e := range s.projectTopic(id, now, horizon, params) {
			key := e.ReviewTime.In(s.loc).Format(time.DateOnly)
			sched[key] = append(sched[key], e)
		}
	}

	for _, entries := range sched {
		sort.SliceStable(entries, func(i, j int) bool {
			if !entries[i].ReviewTime.Equal(entries[j].ReviewTime) {
				return entries[i].ReviewTime.Before(entries[j].ReviewTime)
			}
			return entries[i].TopicID < entries[j].TopicID
		})
	}
	return sched, nil
}

// projectTopic lists the review slots of one topic up to horizon.
func (s *Scheduler) projectTopic(topicID string, now, horizon time.Time, p Params) []ScheduleEntry {
	st, ok := s.store.Get(topicID)
	if !ok {
		st = newTopicState(topicID, p, now)
	}

	var next time.Time
	switch {
	case st.NextReviewTime == nil:
		current := strengthAt(st, now)
		next = now.Add(daysToDuration(daysUntil(current, p.MinStrength, st.DecayRate, st.DifficultyFactor)))
	case st.NextReviewTime.Before(now):
		next = now
	default:
		next = *st.NextReviewTime
	}
	estimate := strengthAt(st, next)

	// Every projected review resets to the initial strength, so the gap
	// between later slots is constant.
	rate := st.DecayRate * st.DifficultyFactor
	gapDays := daysUntil(p.InitialStrength, p.MinStrength, st.DecayRate, st.DifficultyFactor)
	gap := daysToDuration(gapDays)
	gapEstimate := clamp01(p.InitialStrength * math.Exp(-rate*gapDays))

	var out []ScheduleEntry
	for !next.After(horizon) {
		out = append(out, ScheduleEntry{
			TopicID:           topicID,
			ReviewTime:        next,
			EstimatedStrength: estimate,
		})
		next = next.Add(gap)
		estimate = gapEstimate
	}
	return out
}
