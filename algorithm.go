package ebb

import (
	"math"
	"time"
)

// consolidation scales how much review count and past performance slow decay.
const consolidation = 0.1

// Difficulty adapter steps. Raising is faster than lowering so a topic
// does not oscillate between bands.
const (
	hardenStep = 1.1
	easeStep   = 0.95
)

// Interval bounds in days. The floor stops sub-hour review loops; the
// ceiling keeps intervals representable as a time.Duration.
const (
	minInterval = 0.25
	maxInterval = 36500
)

const day = 24 * time.Hour

// elapsedDays returns the fractional days from since to now, clamped at 0.
func elapsedDays(since, now time.Time) float64 {
	d := now.Sub(since).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}

// daysToDuration converts fractional days to a time.Duration.
func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(day))
}

// adjustedDecayRate computes
// rate · difficulty / (1 + 0.1 · reviewCount · performance).
func adjustedDecayRate(rate, difficulty float64, reviewCount int, performance float64) float64 {
	return rate * difficulty / (1 + consolidation*float64(reviewCount)*performance)
}

// strength computes S = last · e^(-adjusted · elapsed), clamped to [0, 1].
func strength(last, adjusted, elapsed float64) float64 {
	return clamp01(last * math.Exp(-adjusted*elapsed))
}

// strengthAt evaluates the decay model for a topic state at now.
func strengthAt(st TopicState, now time.Time) float64 {
	rate := adjustedDecayRate(st.DecayRate, st.DifficultyFactor, st.ReviewCount, st.LastPerformance)
	return strength(st.LastStrength, rate, elapsedDays(st.LastReviewTime, now))
}

// daysUntil inverts S(t) = current · e^(-rate·difficulty·t) at the target:
// t = ln(current / target) / (rate · difficulty), clamped to
// [minInterval, maxInterval]. The consolidation term is left out of the
// inversion.
func daysUntil(current, target, rate, difficulty float64) float64 {
	if current <= target {
		return minInterval
	}
	days := math.Log(current/target) / (rate * difficulty)
	return math.Min(maxInterval, math.Max(minInterval, days))
}

// boost moves strength toward 1 by boostFactor · score of the lost strength.
// S' = min(1, S + (1 - S) · boostFactor · score)
func boost(before, boostFactor, score float64) float64 {
	return math.Min(1.0, before+(1-before)*boostFactor*score)
}

// adaptDifficulty raises the factor by 10% for a weak review and lowers it by
// 5% for a strong one, keeping it within [MinDifficulty, MaxDifficulty].
func adaptDifficulty(difficulty, score float64) float64 {
	switch BandOf(score) {
	case Weak:
		return math.Min(MaxDifficulty, difficulty*hardenStep)
	case Strong:
		return math.Max(MinDifficulty, difficulty*easeStep)
	default:
		return difficulty
	}
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
