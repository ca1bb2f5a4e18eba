// Package rbf computes radial basis function blend weights over a library of
// target feature vectors, used to blend between reference driven poses.
//
// A Solver binds a DistanceMetric and a Kernel at construction, either from
// Params (NewSolver, NewSolverFromRecipe) or explicitly (NewSolverWith).
package rbf

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gogpu/rigsolve"
)

// Target is one library entry. Scale multiplies the solver radius for this
// target; values ≤ 0 mean 1.
type Target struct {
	Values []float64
	Scale  float64
}

func (t Target) scale() float64 {
	if t.Scale > 0 {
		return t.Scale
	}
	return 1
}

// Solver maps query features to normalized, threshold-cut weights over its
// targets. A Solver is immutable and safe for concurrent Solve calls.
type Solver struct {
	params  Params
	metric  DistanceMetric
	kernel  Kernel
	targets []Target
	dims    int

	// inverse is K⁻¹ with K[i][j] = φⱼ(targetᵢ), set for interpolative
	// solvers whose kernel matrix is invertible.
	inverse *mat.Dense
}

// NewSolver returns a solver using the metric and kernel selected by params.
// It panics on invalid params or targets of inconsistent length.
func NewSolver(params Params, targets []Target) *Solver {
	if err := params.Validate(); err != nil {
		panic(err.Error())
	}
	return newSolver(params.Metric(), params.KernelFunc(), params, targets)
}

// NewSolverWith returns a solver using a caller-supplied metric and kernel.
// params.Distance and params.Kernel are kept for reference only.
func NewSolverWith(metric DistanceMetric, kernel Kernel, params Params, targets []Target) *Solver {
	if metric == nil || kernel == nil {
		panic("rbf: nil metric or kernel")
	}
	if err := params.Validate(); err != nil {
		panic(err.Error())
	}
	return newSolver(metric, kernel, params, targets)
}

func newSolver(metric DistanceMetric, kernel Kernel, params Params, targets []Target) *Solver {
	s := &Solver{params: params, metric: metric, kernel: kernel, targets: cloneTargets(targets)}
	if len(targets) == 0 {
		rigsolve.Logger().Warn("rbf: empty target library")
		return s
	}

	s.dims = len(targets[0].Values)
	for i, t := range targets {
		if len(t.Values) != s.dims {
			panic(fmt.Sprintf("rbf: target %d has %d values, want %d", i, len(t.Values), s.dims))
		}
	}
	if params.Distance.quaternion() && s.dims%4 != 0 {
		panic(fmt.Sprintf("rbf: %s distance needs quaternion blocks, got %d values", params.Distance, s.dims))
	}

	if params.Solver == Interpolative {
		s.inverse = s.invertKernelMatrix()
	}
	return s
}

func (s *Solver) invertKernelMatrix() *mat.Dense {
	n := len(s.targets)
	k := mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			k.Set(i, j, s.phi(s.targets[i].Values, j))
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(k); err != nil {
		rigsolve.Logger().Warn("rbf: kernel matrix not invertible, using additive weights",
			"targets", n, "err", err)
		return nil
	}
	return &inv
}

func cloneTargets(targets []Target) []Target {
	out := make([]Target, len(targets))
	for i, t := range targets {
		out[i] = Target{Values: slices.Clone(t.Values), Scale: t.Scale}
	}
	return out
}

// phi returns the kernel value of x against target j.
func (s *Solver) phi(x []float64, j int) float64 {
	t := s.targets[j]
	return s.kernel.Weight(s.metric.Distance(x, t.Values), s.params.Radius*t.scale())
}

// Params returns the solver parameters.
func (s *Solver) Params() Params { return s.params }

// NumTargets returns the library size.
func (s *Solver) NumTargets() int { return len(s.targets) }

// Dims returns the feature length, or 0 for an empty library.
func (s *Solver) Dims() int { return s.dims }

// Interpolating reports whether weights come from the inverted kernel system.
func (s *Solver) Interpolating() bool { return s.inverse != nil }

// Recipe returns the parameters and a copy of the targets.
func (s *Solver) Recipe() Recipe {
	return Recipe{Params: s.params, Targets: cloneTargets(s.targets)}
}

// Solve returns one weight per target for query. Negative weights are
// clamped to zero. With Normalize the weights sum to one; weights below
// WeightThreshold are then cut and the rest renormalized. An empty library
// yields an empty slice. Solve panics if len(query) != Dims().
func (s *Solver) Solve(query []float64) []float64 {
	n := len(s.targets)
	if n == 0 {
		return []float64{}
	}
	if len(query) != s.dims {
		panic(fmt.Sprintf("rbf: query has %d values, want %d", len(query), s.dims))
	}

	w := make([]float64, n)
	for j := range n {
		w[j] = s.phi(query, j)
	}
	if s.inverse != nil {
		// wᵀ = φᵀ·K⁻¹
		out := mat.NewVecDense(n, nil)
		out.MulVec(s.inverse.T(), mat.NewVecDense(n, w))
		copy(w, out.RawVector().Data)
	}

	for j, v := range w {
		if !(v > 0) {
			w[j] = 0
		}
	}
	s.normalize(w)

	cut := false
	for j, v := range w {
		if v > 0 && v < s.params.WeightThreshold {
			w[j] = 0
			cut = true
		}
	}
	if cut {
		s.normalize(w)
	}
	return w
}

func (s *Solver) normalize(w []float64) {
	if !s.params.Normalize {
		return
	}
	if sum := floats.Sum(w); sum > 0 {
		floats.Scale(1/sum, w)
	}
}
