package optimizer

import (
	"sort"
	"time"

	"github.com/sky-flux/ebb"
)

// Fitted parameters, in vector order.
const (
	idxDecayRate = iota
	idxReviewBoost
	numParams
)

// vector holds the fitted parameters.
type vector [numParams]float64

// Bounds for the fitted parameters.
var (
	LowerBounds = vector{idxDecayRate: 0.001, idxReviewBoost: 0.01}
	UpperBounds = vector{idxDecayRate: 5.0, idxReviewBoost: 1.0}
)

func toVector(p ebb.Params) vector {
	return vector{idxDecayRate: p.DecayRate, idxReviewBoost: p.ReviewBoost}
}

func fromVector(base ebb.Params, v vector) ebb.Params {
	base.DecayRate = v[idxDecayRate]
	base.ReviewBoost = v[idxReviewBoost]
	return base
}

// clampVector constrains each parameter to [LowerBounds, UpperBounds].
func clampVector(v vector) vector {
	for i := range v {
		v[i] = min(max(v[i], LowerBounds[i]), UpperBounds[i])
	}
	return v
}

// review is an internal representation of a single review event for training.
type review struct {
	score       float64   // observed performance, used as a soft label
	elapsedDays float64   // days since previous review (0 for first)
	reviewTime  time.Time // original review timestamp (for Scheduler replay)
}

// formatEvents groups review events by topic and sorts each group by time.
// Each review computes elapsed_days from the previous review.
func formatEvents(events []ebb.ReviewEvent) map[string][]review {
	if len(events) == 0 {
		return nil
	}

	groups := make(map[string][]ebb.ReviewEvent)
	for _, ev := range events {
		groups[ev.TopicID] = append(groups[ev.TopicID], ev)
	}

	result := make(map[string][]review, len(groups))
	for topicID, evs := range groups {
		sort.SliceStable(evs, func(i, j int) bool {
			return evs[i].ReviewTime.Before(evs[j].ReviewTime)
		})

		reviews := make([]review, len(evs))
		for i, ev := range evs {
			var elapsed float64
			if i > 0 {
				elapsed = ev.ReviewTime.Sub(evs[i-1].ReviewTime).Hours() / 24.0
			}
			reviews[i] = review{
				score:       ev.PerformanceScore,
				elapsedDays: elapsed,
				reviewTime:  ev.ReviewTime,
			}
		}
		result[topicID] = reviews
	}

	return result
}

// countCrossDayReviews counts reviews where elapsed_days >= 1 (cross-day reviews).
// The first review of each topic is never cross-day (elapsed_days = 0).
func countCrossDayReviews(data map[string][]review) int {
	count := 0
	for _, reviews := range data {
		for _, r := range reviews {
			if r.elapsedDays >= 1.0 {
				count++
			}
		}
	}
	return count
}

// topicIDs returns the keys of data in ascending order.
func topicIDs(data map[string][]review) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
