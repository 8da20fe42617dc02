package ebb

import "time"

// TopicState is the memory state of a single topic. It is created on the
// topic's first review and only mutated by Scheduler.RecordReview.
type TopicState struct {
	TopicID          string     `json:"topic_id"`
	DecayRate        float64    `json:"decay_rate"`        // per day, > 0.
	DifficultyFactor float64    `json:"difficulty_factor"` // in [MinDifficulty, MaxDifficulty].
	LastStrength     float64    `json:"last_strength"`     // strength right after the last review.
	ReviewCount      int        `json:"review_count"`
	LastReviewTime   time.Time  `json:"last_review_time"`
	LastPerformance  float64    `json:"last_performance"`
	NextReviewTime   *time.Time `json:"next_review_time"` // nil until scheduled.
}

// newTopicState seeds a topic from the global params as if it had been
// learned at the given time.
func newTopicState(topicID string, p Params, at time.Time) TopicState {
	return TopicState{
		TopicID:          topicID,
		DecayRate:        p.DecayRate,
		DifficultyFactor: p.DifficultyFactor,
		LastStrength:     p.InitialStrength,
		LastReviewTime:   at,
	}
}

// clone returns a deep copy of the state.
func (t TopicState) clone() TopicState {
	out := t
	if t.NextReviewTime != nil {
		v := *t.NextReviewTime
		out.NextReviewTime = &v
	}
	return out
}

// IsDue reports whether the topic's scheduled review is at or before now.
func (t TopicState) IsDue(now time.Time) bool {
	return t.NextReviewTime != nil && !t.NextReviewTime.After(now)
}
