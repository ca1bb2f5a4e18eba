package rbf

import (
	"fmt"
	"math"
	"strings"
)

// DistanceMethod selects a built-in DistanceMetric.
type DistanceMethod uint8

const (
	DistanceEuclidean DistanceMethod = iota
	DistanceQuaternion
	DistanceSwingAngle
	DistanceTwistAngle
)

var distanceNames = [...]string{"euclidean", "quaternion", "swing", "twist"}

func (m DistanceMethod) String() string {
	if int(m) < len(distanceNames) {
		return distanceNames[m]
	}
	return fmt.Sprintf("DistanceMethod(%d)", m)
}

// ParseDistanceMethod parses the String form of a DistanceMethod.
func ParseDistanceMethod(s string) (DistanceMethod, error) {
	i, err := parseName("distance", s, distanceNames[:])
	return DistanceMethod(i), err
}

// KernelType selects a built-in Kernel.
type KernelType uint8

const (
	KernelLinear KernelType = iota
	KernelGaussian
	KernelExponential
	KernelCubic
	KernelQuintic
)

var kernelNames = [...]string{"linear", "gaussian", "exponential", "cubic", "quintic"}

func (k KernelType) String() string {
	if int(k) < len(kernelNames) {
		return kernelNames[k]
	}
	return fmt.Sprintf("KernelType(%d)", k)
}

// ParseKernelType parses the String form of a KernelType.
func ParseKernelType(s string) (KernelType, error) {
	i, err := parseName("kernel", s, kernelNames[:])
	return KernelType(i), err
}

// SolverType selects how kernel values become weights.
type SolverType uint8

const (
	// Additive uses the kernel values directly.
	Additive SolverType = iota
	// Interpolative solves the kernel system so that a query equal to target
	// i yields exactly weight 1 for i and 0 elsewhere.
	Interpolative
)

var solverNames = [...]string{"additive", "interpolative"}

func (s SolverType) String() string {
	if int(s) < len(solverNames) {
		return solverNames[s]
	}
	return fmt.Sprintf("SolverType(%d)", s)
}

// ParseSolverType parses the String form of a SolverType.
func ParseSolverType(s string) (SolverType, error) {
	i, err := parseName("solver", s, solverNames[:])
	return SolverType(i), err
}

var axisNames = [...]string{"x", "y", "z"}

// ParseAxis parses "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	i, err := parseName("twist axis", s, axisNames[:])
	return Axis(i), err
}

func parseName(what, s string, names []string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(s, n) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("rbf: unknown %s %q (want one of %s)", what, s, strings.Join(names, ", "))
}

// Params configures a Solver.
type Params struct {
	Distance  DistanceMethod
	Kernel    KernelType
	TwistAxis Axis
	// Radius is the kernel radius, multiplied by each target's Scale.
	Radius float64
	// WeightThreshold zeroes weights below it.
	WeightThreshold float64
	// Normalize makes the weights sum to one.
	Normalize bool
	Solver    SolverType
}

// DefaultParams returns additive Gaussian blending over Euclidean distance.
func DefaultParams() Params {
	return Params{
		Distance:        DistanceEuclidean,
		Kernel:          KernelGaussian,
		TwistAxis:       AxisX,
		Radius:          1,
		WeightThreshold: 1e-3,
		Normalize:       true,
		Solver:          Additive,
	}
}

// Metric returns the DistanceMetric selected by p.
func (p Params) Metric() DistanceMetric {
	switch p.Distance {
	case DistanceEuclidean:
		return Euclidean{}
	case DistanceQuaternion:
		return QuaternionDistance{}
	case DistanceSwingAngle:
		return SwingAngle{TwistAxis: p.TwistAxis}
	case DistanceTwistAngle:
		return TwistAngle{TwistAxis: p.TwistAxis}
	}
	panic(fmt.Sprintf("rbf: unknown distance method %d", p.Distance))
}

// KernelFunc returns the Kernel selected by p.
func (p Params) KernelFunc() Kernel {
	switch p.Kernel {
	case KernelLinear:
		return LinearKernel{}
	case KernelGaussian:
		return GaussianKernel{}
	case KernelExponential:
		return ExponentialKernel{}
	case KernelCubic:
		return CubicKernel{}
	case KernelQuintic:
		return QuinticKernel{}
	}
	panic(fmt.Sprintf("rbf: unknown kernel %d", p.Kernel))
}

// Validate reports the first out-of-range field of p.
func (p Params) Validate() error {
	switch {
	case !(p.Radius > 0) || math.IsInf(p.Radius, 0):
		return fmt.Errorf("rbf: radius must be positive and finite, got %v", p.Radius)
	case !(p.WeightThreshold >= 0 && p.WeightThreshold <= 1):
		return fmt.Errorf("rbf: weight threshold %v outside [0,1]", p.WeightThreshold)
	case int(p.Distance) >= len(distanceNames):
		return fmt.Errorf("rbf: unknown distance method %d", p.Distance)
	case int(p.Kernel) >= len(kernelNames):
		return fmt.Errorf("rbf: unknown kernel %d", p.Kernel)
	case p.TwistAxis < AxisX || p.TwistAxis > AxisZ:
		return fmt.Errorf("rbf: unknown twist axis %d", p.TwistAxis)
	case int(p.Solver) >= len(solverNames):
		return fmt.Errorf("rbf: unknown solver type %d", p.Solver)
	}
	return nil
}

func (d DistanceMethod) quaternion() bool { return d != DistanceEuclidean }
