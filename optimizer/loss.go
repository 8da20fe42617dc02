package optimizer

import (
	"math"
	"time"

	"github.com/sky-flux/ebb"
)

const bceClamp = 1e-7

// bceLoss computes the binary cross-entropy loss: -[y*ln(p) + (1-y)*ln(1-p)].
// pred is clamped to [bceClamp, 1-bceClamp] to avoid log(0). y may be any
// value in [0, 1].
func bceLoss(pred, y float64) float64 {
	p := math.Max(bceClamp, math.Min(pred, 1-bceClamp))
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// computeBatchLoss computes the average BCE loss over all cross-day reviews.
// It creates a Scheduler from the candidate params and replays each topic's
// review history. Returns 0 if there are no cross-day reviews, and the
// validation error if the candidate params are not valid.
func computeBatchLoss(base ebb.Params, v vector, data map[string][]review) (float64, error) {
	s, err := ebb.NewScheduler(ebb.SchedulerConfig{
		Params:   fromVector(base, v),
		Location: time.UTC,
	})
	if err != nil {
		return 0, err
	}

	var totalLoss float64
	var count int

	for _, topicID := range topicIDs(data) {
		for i, rev := range data[topicID] {
			// Only cross-day reviews contribute to loss.
			if i > 0 && rev.elapsedDays >= 1.0 {
				pred, err := s.CurrentStrength(topicID, rev.reviewTime)
				if err == nil {
					totalLoss += bceLoss(pred, rev.score)
					count++
				}
			}

			if _, err := s.RecordReview(topicID, rev.score, rev.reviewTime); err != nil {
				break
			}
		}
	}

	if count == 0 {
		return 0, nil
	}
	return totalLoss / float64(count), nil
}

const gradEps = 1e-5

// numericalGradient estimates dL/dv by finite differences. Both evaluation
// points are clamped into [LowerBounds, UpperBounds], so the difference is
// central inside the range and one-sided at a bound.
func numericalGradient(base ebb.Params, v vector, data map[string][]review) (vector, error) {
	var grad vector
	for i := range v {
		hi, lo := v, v
		hi[i] = math.Min(v[i]+gradEps, UpperBounds[i])
		lo[i] = math.Max(v[i]-gradEps, LowerBounds[i])

		lHi, err := computeBatchLoss(base, hi, data)
		if err != nil {
			return vector{}, err
		}
		lLo, err := computeBatchLoss(base, lo, data)
		if err != nil {
			return vector{}, err
		}
		grad[i] = (lHi - lLo) / (hi[i] - lo[i])
	}
	return grad, nil
}
