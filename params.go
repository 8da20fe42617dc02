package ebb

import (
	"fmt"
	"math"
)

// Difficulty factor bounds. The adapter never moves a topic outside them.
const (
	MinDifficulty = 0.5
	MaxDifficulty = 2.0
)

// Params are the global model defaults applied to topics without their own
// state. They are configuration, not derived state.
type Params struct {
	InitialStrength  float64 `json:"initial_strength"`  // zero → 1.0
	DecayRate        float64 `json:"decay_rate"`        // per day; zero → 0.1
	MinStrength      float64 `json:"min_strength"`      // review threshold; zero → 0.2
	ReviewBoost      float64 `json:"review_boost"`      // zero → 0.5
	DifficultyFactor float64 `json:"difficulty_factor"` // zero → 1.0
}

// DefaultParams are the stock model defaults.
var DefaultParams = Params{
	InitialStrength:  1.0,
	DecayRate:        0.1,
	MinStrength:      0.2,
	ReviewBoost:      0.5,
	DifficultyFactor: 1.0,
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	if p.InitialStrength == 0 {
		p.InitialStrength = DefaultParams.InitialStrength
	}
	if p.DecayRate == 0 {
		p.DecayRate = DefaultParams.DecayRate
	}
	if p.MinStrength == 0 {
		p.MinStrength = DefaultParams.MinStrength
	}
	if p.ReviewBoost == 0 {
		p.ReviewBoost = DefaultParams.ReviewBoost
	}
	if p.DifficultyFactor == 0 {
		p.DifficultyFactor = DefaultParams.DifficultyFactor
	}
	return p
}

// Validate checks every field against its allowed range.
func (p Params) Validate() error {
	checks := []struct {
		name    string
		v       float64
		lo, hi  float64
		openLow bool
	}{
		{"initial_strength", p.InitialStrength, 0, 1, true},
		{"decay_rate", p.DecayRate, 0, math.MaxFloat64, true},
		{"min_strength", p.MinStrength, 0, 1, true},
		{"review_boost", p.ReviewBoost, 0, 1, true},
		{"difficulty_factor", p.DifficultyFactor, MinDifficulty, MaxDifficulty, false},
	}
	for _, c := range checks {
		bad := math.IsNaN(c.v) || c.v > c.hi || c.v < c.lo || (c.openLow && c.v == c.lo)
		if bad {
			return fmt.Errorf("%w: %s = %f", ErrInvalidParameters, c.name, c.v)
		}
	}
	return nil
}
