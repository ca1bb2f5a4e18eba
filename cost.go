package rigsolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Cost stacks weighted differentiable residual blocks into one virtual
// least-squares problem
//
//	E(x) = Σᵢ wᵢ ‖rᵢ(x)‖²
//
// without ever materializing the stacked Jacobian.
//
// Weights are stored next to each term and applied when the term is read
// (Value, AddJx, AddJtx, the JtJ accumulators), never folded into the
// DiffData. The same DiffData may therefore be added several times with
// different weights.
//
// A Cost is built and consumed within one outer iteration and is not safe
// for concurrent mutation.
type Cost struct {
	terms []costTerm
	size  int
	cols  int
}

type costTerm struct {
	weight float64
	data   *DiffData
	name   string
}

// TermInfo describes one stored term.
type TermInfo struct {
	Name   string
	Weight float64
	Size   int
}

// NewCost returns an empty cost.
func NewCost() *Cost {
	return &Cost{cols: -1}
}

// Add appends d with the given weight. If average is set the weight is
// divided by d.Size() so terms of very different cardinality can be combined
// fairly. Terms with Size()==0 or a non-positive effective weight are
// silently dropped.
//
// Add panics if d's Jacobian has a different column count than earlier terms.
func (c *Cost) Add(d *DiffData, weight float64, name string, average bool) {
	if d == nil || d.Size() == 0 {
		return
	}
	if average {
		weight /= float64(d.Size())
	}
	if !(weight > 0) {
		return
	}
	c.checkCols(d, name)
	c.terms = append(c.terms, costTerm{weight: weight, data: d, name: name})
	c.size += d.Size()
}

// AddCost merges the terms of other into c, multiplying each term weight by
// weight. If average is set the multiplier is divided by other.Size().
func (c *Cost) AddCost(other *Cost, weight float64, average bool) {
	if other == nil || other.size == 0 {
		return
	}
	if average {
		weight /= float64(other.size)
	}
	if !(weight > 0) {
		return
	}
	for _, t := range other.terms {
		c.Add(t.data, t.weight*weight, t.name, false)
	}
}

func (c *Cost) checkCols(d *DiffData, name string) {
	if !d.HasJacobian() {
		return
	}
	cols := d.Jacobian().Cols()
	if c.cols >= 0 && c.cols != cols {
		panic(fmt.Sprintf("rigsolve: cost term %q has %d Jacobian columns, previous terms have %d", name, cols, c.cols))
	}
	c.cols = cols
}

// NumTerms returns the number of stored terms.
func (c *Cost) NumTerms() int { return len(c.terms) }

// Size returns the total number of residuals.
func (c *Cost) Size() int { return c.size }

// Cols returns the number of optimization variables, or 0 if no term has
// a Jacobian.
func (c *Cost) Cols() int { return max(c.cols, 0) }

// HasJacobian reports whether every stored term carries a Jacobian.
// An empty cost has no Jacobian.
func (c *Cost) HasJacobian() bool {
	if len(c.terms) == 0 {
		return false
	}
	for _, t := range c.terms {
		if !t.data.HasJacobian() {
			return false
		}
	}
	return true
}

// Terms returns a description of every stored term in insertion order.
func (c *Cost) Terms() []TermInfo {
	out := make([]TermInfo, len(c.terms))
	for i, t := range c.terms {
		out[i] = TermInfo{Name: t.name, Weight: t.weight, Size: t.data.Size()}
	}
	return out
}

// Value returns the concatenation of sqrt(wᵢ)·rᵢ, so ‖Value()‖² is the energy.
func (c *Cost) Value() []float64 {
	out := make([]float64, c.size)
	off := 0
	for _, t := range c.terms {
		n := t.data.Size()
		floats.AddScaled(out[off:off+n], math.Sqrt(t.weight), t.data.Value())
		off += n
	}
	return out
}

// Energy returns Σᵢ wᵢ‖rᵢ‖².
func (c *Cost) Energy() float64 {
	var e float64
	for _, t := range c.terms {
		v := t.data.Value()
		e += t.weight * floats.Dot(v, v)
	}
	return e
}

// AddJx computes result += scale·J·x where J is the stacked, weighted
// Jacobian. Terms without a Jacobian contribute nothing.
func (c *Cost) AddJx(result, x []float64, scale float64) {
	if len(result) != c.size {
		panic(fmt.Sprintf("rigsolve: AddJx result has %d entries, cost has %d residuals", len(result), c.size))
	}
	off := 0
	for _, t := range c.terms {
		n := t.data.Size()
		if j := t.data.Jacobian(); j != nil {
			j.AddJx(result[off:off+n], x, scale*math.Sqrt(t.weight))
		}
		off += n
	}
}

// AddJtx computes result += scale·Jᵀ·x where J is the stacked, weighted
// Jacobian.
func (c *Cost) AddJtx(result, x []float64, scale float64) {
	if len(x) != c.size {
		panic(fmt.Sprintf("rigsolve: AddJtx x has %d entries, cost has %d residuals", len(x), c.size))
	}
	off := 0
	for _, t := range c.terms {
		n := t.data.Size()
		if j := t.data.Jacobian(); j != nil {
			j.AddJtx(result, x[off:off+n], scale*math.Sqrt(t.weight))
		}
		off += n
	}
}

// AddJtResidual computes result += scale·Σᵢ wᵢ·Jᵢᵀ·rᵢ, the gradient of E/2.
func (c *Cost) AddJtResidual(result []float64, scale float64) {
	for _, t := range c.terms {
		if j := t.data.Jacobian(); j != nil {
			j.AddJtx(result, t.data.Value(), scale*t.weight)
		}
	}
}

// AddDenseJtJLower adds scale·Σᵢ wᵢ·JᵢᵀJᵢ to the lower triangle of jtj.
// The caller must check HasJacobian first; AddDenseJtJLower panics otherwise.
func (c *Cost) AddDenseJtJLower(jtj *mat.Dense, scale float64, pool *ThreadPool) {
	c.mustHaveJacobian("AddDenseJtJLower")
	for _, t := range c.terms {
		s := scale * t.weight
		switch j := t.data.Jacobian().(type) {
		case *DenseJacobian:
			ParallelAtALowerAdd(jtj, j.m, s, pool)
		case *ComposedJacobian:
			if d, ok := j.dense(); ok {
				ParallelAtALowerAdd(jtj, d, s, pool)
			} else {
				ParallelSparseAtALowerAdd(jtj, j.AsSparse(), s, pool)
			}
		default:
			ParallelSparseAtALowerAdd(jtj, j.AsSparse(), s, pool)
		}
	}
}

// AddSparseJtJLower appends the lower-triangle entries of scale·Σᵢ wᵢ·JᵢᵀJᵢ
// to triplets and returns the extended slice. Entries are not merged; build
// the matrix with NewSparseFromTriplets to sum duplicates.
// The caller must check HasJacobian first; AddSparseJtJLower panics otherwise.
func (c *Cost) AddSparseJtJLower(triplets []Triplet, scale float64) []Triplet {
	c.mustHaveJacobian("AddSparseJtJLower")
	for _, t := range c.terms {
		s := scale * t.weight
		jac := t.data.Jacobian().AsSparse()
		for k := range jac.rows {
			cols, vals := jac.Row(k)
			for p, cp := range cols {
				vp := s * vals[p]
				for q := 0; q <= p; q++ {
					triplets = append(triplets, Triplet{Row: cp, Col: cols[q], Value: vp * vals[q]})
				}
			}
		}
	}
	return triplets
}

func (c *Cost) mustHaveJacobian(op string) {
	if !c.HasJacobian() {
		panic("rigsolve: " + op + " called on a cost whose terms do not all carry a Jacobian")
	}
}

// String returns a per-term energy breakdown.
func (c *Cost) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total: %g", c.Energy())
	for _, t := range c.terms {
		v := t.data.Value()
		name := t.name
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(&b, ", %s: %g", name, t.weight*floats.Dot(v, v))
	}
	return b.String()
}

// LogBreakdown writes the per-term energies at the given level.
func (c *Cost) LogBreakdown(ctx context.Context, level slog.Level) {
	l := Logger()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, "rigsolve: cost", "terms", c.NumTerms(), "residuals", c.size, "breakdown", c.String())
}
