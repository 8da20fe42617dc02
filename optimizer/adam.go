package optimizer

import "math"

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Adam descends the fitted parameter vector with bias-corrected moment
// estimates and projects every step back into [LowerBounds, UpperBounds].
//
// A parameter resting on a bound whose gradient points further out is
// frozen for that step: its moments are not updated, so no momentum builds
// up against the bound and the parameter leaves it as soon as the gradient
// turns.
type Adam struct {
	lr         float64
	mean, sq   vector  // first and second moment estimates
	pow1, pow2 float64 // β1^t and β2^t
}

// NewAdam returns an Adam stepper with learning rate lr.
func NewAdam(lr float64) *Adam {
	return &Adam{lr: lr, pow1: 1, pow2: 1}
}

// SetLR changes the learning rate for later steps.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// Step returns v moved against grad, clamped into bounds.
func (a *Adam) Step(v, grad vector) vector {
	a.pow1 *= adamBeta1
	a.pow2 *= adamBeta2

	for i, g := range grad {
		if g == 0 || pushesOut(v, i, g) {
			continue
		}
		a.mean[i] = adamBeta1*a.mean[i] + (1-adamBeta1)*g
		a.sq[i] = adamBeta2*a.sq[i] + (1-adamBeta2)*g*g

		m := a.mean[i] / (1 - a.pow1)
		s := a.sq[i] / (1 - a.pow2)
		v[i] -= a.lr * m / (math.Sqrt(s) + adamEps)
	}
	return clampVector(v)
}

// pushesOut reports whether a descent step on v[i] with gradient g would
// leave the feasible range.
func pushesOut(v vector, i int, g float64) bool {
	return (g < 0 && v[i] >= UpperBounds[i]) || (g > 0 && v[i] <= LowerBounds[i])
}

// cosineLR anneals lrMax to zero over total steps:
// lrMax · (1 + cos(π·step/total)) / 2. A non-positive total keeps lrMax.
func cosineLR(lrMax float64, step, total int) float64 {
	if total <= 0 {
		return lrMax
	}
	frac := min(float64(step)/float64(total), 1)
	return lrMax * (1 + math.Cos(math.Pi*frac)) / 2
}
