package ebb

import (
	"sort"
	"time"
)

// DueTopic is a topic whose scheduled review has arrived.
type DueTopic struct {
	TopicID          string    `json:"topic_id"`
	CurrentStrength  float64   `json:"current_strength"`
	LastReviewTime   time.Time `json:"last_review_time"`
	NextReviewTime   time.Time `json:"next_review_time"`
	ReviewCount      int       `json:"review_count"`
	DifficultyFactor float64   `json:"difficulty_factor"`
}

// DueTopics returns topics whose next review is at or before now (zero →
// the clock), weakest first. Ties are broken by topic id. A limit ≤ 0
// returns every due topic. The result is never nil.
func (s *Scheduler) DueTopics(now time.Time, limit int) []DueTopic {
	now = s.orNow(now)

	due := []DueTopic{}
	for _, st := range s.store.Snapshot() {
		if !st.IsDue(now) {
			continue
		}
		due = append(due, DueTopic{
			TopicID:          st.TopicID,
			CurrentStrength:  strengthAt(st, now),
			LastReviewTime:   st.LastReviewTime,
			NextReviewTime:   *st.NextReviewTime,
			ReviewCount:      st.ReviewCount,
			DifficultyFactor: st.DifficultyFactor,
		})
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].CurrentStrength != due[j].CurrentStrength {
			return due[i].CurrentStrength < due[j].CurrentStrength
		}
		return due[i].TopicID < due[j].TopicID
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}
