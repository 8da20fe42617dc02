package ebb

import "time"

// ReviewEvent records a single review of a topic. Events are immutable once
// appended to a Ledger.
type ReviewEvent struct {
	TopicID               string    `json:"topic_id"`
	ReviewTime            time.Time `json:"review_time"`
	PerformanceScore      float64   `json:"performance_score"`
	StrengthBefore        float64   `json:"strength_before"`
	StrengthAfter         float64   `json:"strength_after"`
	DifficultyFactorAfter float64   `json:"difficulty_factor_after"`
}
