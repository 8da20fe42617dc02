package ebb

import (
	"fmt"
	"sort"
	"time"
)

// Classification thresholds for analytics.
const (
	difficultAbove = 1.2 // difficulty factor
	improvingAbove = 0.1 // performance trend
	lowOverall     = 0.6 // overall performance
	recentWindow   = 3   // reviews in the "recent" average
)

// TopicMetrics summarizes one topic's review history.
type TopicMetrics struct {
	ReviewCount        int     `json:"review_count"`
	AveragePerformance float64 `json:"average_performance"`
	RecentPerformance  float64 `json:"recent_performance"`
	Trend              float64 `json:"trend"` // recent average minus earlier average
	Band               Band    `json:"band"`
	CurrentStrength    float64 `json:"current_strength"`
	DifficultyFactor   float64 `json:"difficulty_factor"`
	EffectiveDecayRate float64 `json:"effective_decay_rate"` // per day, with consolidation
	AverageDailyLoss   float64 `json:"average_daily_loss"`   // strength lost per day between reviews
}

// PerformanceReport aggregates review history across topics.
type PerformanceReport struct {
	TotalReviews       int                     `json:"total_reviews"`
	OverallPerformance float64                 `json:"overall_performance"`
	Topics             map[string]TopicMetrics `json:"topics"`
	DifficultTopics    []string                `json:"difficult_topics"`
	ImprovingTopics    []string                `json:"improving_topics"`
	Recommendations    []string                `json:"recommendations"`
}

// Empty reports whether there was no review history to analyze.
func (r PerformanceReport) Empty() bool {
	return r.TotalReviews == 0
}

// AnalyzePerformance summarizes the review ledger as of now (zero → the
// clock). With no history it returns an empty report, not an error.
func (s *Scheduler) AnalyzePerformance(now time.Time) PerformanceReport {
	now = s.orNow(now)
	report := PerformanceReport{
		Topics:          map[string]TopicMetrics{},
		DifficultTopics: []string{},
		ImprovingTopics: []string{},
		Recommendations: []string{},
	}

	events := s.ledger.All()
	if len(events) == 0 {
		report.Recommendations = append(report.Recommendations,
			"No reviews recorded yet; review a topic to start tracking memory strength.")
		return report
	}

	byTopic := make(map[string][]ReviewEvent)
	var total float64
	for _, ev := range events {
		byTopic[ev.TopicID] = append(byTopic[ev.TopicID], ev)
		total += ev.PerformanceScore
	}
	report.TotalReviews = len(events)
	report.OverallPerformance = total / float64(len(events))

	threshold := s.Params().MinStrength
	var weak []string

	ids := make([]string, 0, len(byTopic))
	for id := range byTopic {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := topicMetrics(byTopic[id])
		if st, ok := s.store.Get(id); ok {
			m.CurrentStrength = strengthAt(st, now)
			m.DifficultyFactor = st.DifficultyFactor
			m.EffectiveDecayRate = adjustedDecayRate(st.DecayRate, st.DifficultyFactor, st.ReviewCount, st.LastPerformance)
			if m.CurrentStrength < threshold {
				weak = append(weak, id)
			}
		}
		report.Topics[id] = m

		if m.DifficultyFactor > difficultAbove {
			report.DifficultTopics = append(report.DifficultTopics, id)
		}
		if m.Trend > improvingAbove {
			report.ImprovingTopics = append(report.ImprovingTopics, id)
		}
	}

	report.Recommendations = recommend(report, weak)
	return report
}

// topicMetrics computes the history-derived metrics of one topic. events
// are ordered by review time.
func topicMetrics(events []ReviewEvent) TopicMetrics {
	m := TopicMetrics{ReviewCount: len(events)}

	var sum float64
	for _, ev := range events {
		sum += ev.PerformanceScore
	}
	m.AveragePerformance = sum / float64(len(events))
	m.Band = BandOf(m.AveragePerformance)

	split := max(0, len(events)-recentWindow)
	m.RecentPerformance = meanScore(events[split:])
	if split > 0 {
		m.Trend = m.RecentPerformance - meanScore(events[:split])
	}

	var loss float64
	var gaps int
	for i := 1; i < len(events); i++ {
		days := elapsedDays(events[i-1].ReviewTime, events[i].ReviewTime)
		if days == 0 {
			continue
		}
		loss += (events[i-1].StrengthAfter - events[i].StrengthBefore) / days
		gaps++
	}
	if gaps > 0 {
		m.AverageDailyLoss = loss / float64(gaps)
	}

	last := events[len(events)-1]
	m.DifficultyFactor = last.DifficultyFactorAfter
	return m
}

func meanScore(events []ReviewEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, ev := range events {
		sum += ev.PerformanceScore
	}
	return sum / float64(len(events))
}

// recommend turns a report into advice, most urgent first.
func recommend(r PerformanceReport, weak []string) []string {
	var recs []string
	for _, id := range weak {
		recs = append(recs, fmt.Sprintf("Review %q next: its strength has fallen below the review threshold.", id))
	}
	for _, id := range r.DifficultTopics {
		recs = append(recs, fmt.Sprintf("%q is being forgotten quickly (difficulty %.2f); break it into smaller pieces or review it more often.",
			id, r.Topics[id].DifficultyFactor))
	}
	if r.OverallPerformance < lowOverall {
		recs = append(recs, fmt.Sprintf("Overall performance is %.0f%%; shorten sessions and focus on fewer topics.", r.OverallPerformance*100))
	}
	for _, id := range r.ImprovingTopics {
		recs = append(recs, fmt.Sprintf("%q is improving; keep the current review rhythm.", id))
	}
	if len(recs) == 0 {
		recs = append(recs, "Memory is in good shape; keep following the schedule.")
	}
	return recs
}
