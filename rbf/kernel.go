package rbf

import "math"

// Kernel turns a distance into a weight. radius is the distance at which
// compactly supported kernels reach zero and scales the others.
type Kernel interface {
	Weight(distance, radius float64) float64
}

// LinearKernel falls off linearly to zero at the radius.
type LinearKernel struct{}

func (LinearKernel) Weight(d, r float64) float64 {
	return max(1-d/r, 0)
}

// GaussianKernel is exp(−(d/r)²).
type GaussianKernel struct{}

func (GaussianKernel) Weight(d, r float64) float64 {
	x := d / r
	return math.Exp(-x * x)
}

// ExponentialKernel is exp(−d/r).
type ExponentialKernel struct{}

func (ExponentialKernel) Weight(d, r float64) float64 {
	return math.Exp(-d / r)
}

// CubicKernel is (1 − d/r)³ inside the radius.
type CubicKernel struct{}

func (CubicKernel) Weight(d, r float64) float64 {
	x := max(1-d/r, 0)
	return x * x * x
}

// QuinticKernel is (1 − d/r)⁵ inside the radius.
type QuinticKernel struct{}

func (QuinticKernel) Weight(d, r float64) float64 {
	x := max(1-d/r, 0)
	x2 := x * x
	return x2 * x2 * x
}
