package rigsolve

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Add Tests
// =============================================================================

func TestCost_AddDropsDegenerateTerms(t *testing.T) {
	tests := []struct {
		name    string
		data    *DiffData
		weight  float64
		average bool
	}{
		{"zero weight", NewConstantDiffData([]float64{1, 2}), 0, false},
		{"negative weight", NewConstantDiffData([]float64{1, 2}), -1, false},
		{"NaN weight", NewConstantDiffData([]float64{1}), math.NaN(), false},
		{"empty value", NewConstantDiffData(nil), 1, false},
		{"empty value averaged", NewConstantDiffData(nil), 1, true},
		{"nil data", nil, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCost()
			c.Add(NewConstantDiffData([]float64{1}), 1, "keep", false)
			before := c.NumTerms()

			c.Add(tt.data, tt.weight, tt.name, tt.average)

			assert.Equal(t, before, c.NumTerms())
			assert.Equal(t, 1, c.Size())
		})
	}
}

func TestCost_AverageWeights(t *testing.T) {
	small := NewConstantDiffData([]float64{1, 2, 3})
	large := NewConstantDiffData([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})

	c := NewCost()
	c.Add(small, 2, "translation", true)
	c.Add(large, 2, "points", true)

	terms := c.Terms()
	require.Len(t, terms, 2)
	assert.InDelta(t, 2.0/3.0, terms[0].Weight, 1e-15, "translation weight")
	assert.InDelta(t, 2.0/9.0, terms[1].Weight, 1e-15, "points weight")

	// Value() carries sqrt(weight)·r, so value² / r² is the effective weight.
	v := c.Value()
	require.Len(t, v, 12)
	for i := range 3 {
		r := small.Value()[i]
		assert.InDelta(t, 2.0/3.0, v[i]*v[i]/(r*r), 1e-12, "element %d scale", i)
	}
	for i := range 9 {
		r := large.Value()[i]
		assert.InDelta(t, 2.0/9.0, v[3+i]*v[3+i]/(r*r), 1e-12, "element %d scale", 3+i)
	}
}

func TestCost_ReAddSameDataWithDifferentWeight(t *testing.T) {
	d := NewDiffData([]float64{1, -2}, NewIdentityJacobian(2))

	c := NewCost()
	c.Add(d, 4, "first", false)
	c.Add(d, 9, "second", false)

	// The DiffData itself is never scaled.
	require.Equal(t, []float64{1, -2}, d.Value())
	assert.InDeltaSlice(t, []float64{2, -4, 3, -6}, c.Value(), 1e-15)
	assert.InDelta(t, 13*5, c.Energy(), 1e-12)
}

func TestCost_AddCost(t *testing.T) {
	inner := NewCost()
	inner.Add(NewConstantDiffData([]float64{1, 1}), 2, "a", false)
	inner.Add(NewConstantDiffData([]float64{1, 1}), 4, "b", false)

	outer := NewCost()
	outer.AddCost(inner, 3, false)
	outer.AddCost(inner, 8, true) // 8 / 4 residuals = 2

	want := []float64{6, 12, 4, 8}
	terms := outer.Terms()
	require.Len(t, terms, len(want))
	for i, tm := range terms {
		assert.InDelta(t, want[i], tm.Weight, 1e-12, "term %d (%s) weight", i, tm.Name)
	}

	before := outer.NumTerms()
	outer.AddCost(inner, 0, false)
	outer.AddCost(NewCost(), 1, true)
	assert.Equal(t, before, outer.NumTerms(), "degenerate AddCost")
}

func TestCost_ColumnMismatchPanics(t *testing.T) {
	c := NewCost()
	c.Add(NewDiffData([]float64{1, 2}, NewIdentityJacobian(2)), 1, "a", false)
	assert.Panics(t, func() {
		c.Add(NewDiffData([]float64{1, 2, 3}, NewIdentityJacobian(3)), 1, "b", false)
	})
}

// =============================================================================
// Jacobian Accumulation Tests
// =============================================================================

// buildCost returns a cost with dense, sparse and composed terms over p
// variables together with the explicitly stacked weighted Jacobian and value.
func buildCost(rng *rand.Rand, p int) (*Cost, *mat.Dense, []float64) {
	jd := randDense(rng, 6, p)
	js := randSparse(rng, 40, p, 0.1)
	outer := randSparse(rng, 5, 6, 0.5)

	var jc mat.Dense
	jc.Mul(outer.ToDense(), jd)

	terms := []struct {
		jac    Jacobian
		dense  mat.Matrix
		weight float64
	}{
		{NewDenseJacobian(jd), jd, 2},
		{NewSparseJacobian(js), js.ToDense(), 0.5},
		{NewComposedJacobian(outer, NewDenseJacobian(jd)), &jc, 3},
	}

	c := NewCost()
	rows := 0
	for _, tm := range terms {
		rows += tm.jac.Rows()
	}
	stacked := mat.NewDense(rows, p, nil)
	var value []float64
	off := 0
	for i, tm := range terms {
		r := randVec(rng, tm.jac.Rows())
		c.Add(NewDiffData(r, tm.jac), tm.weight, strings.Repeat("t", i+1), false)
		sw := math.Sqrt(tm.weight)
		for k := range tm.jac.Rows() {
			for j := range p {
				stacked.Set(off+k, j, sw*tm.dense.At(k, j))
			}
			value = append(value, sw*r[k])
		}
		off += tm.jac.Rows()
	}
	return c, stacked, value
}

func TestCost_AddJxAddJtx(t *testing.T) {
	rng := rand.New(rand.NewPCG(40, 1))
	const p = 11
	c, stacked, value := buildCost(rng, p)

	assert.InDeltaSlice(t, value, c.Value(), 1e-12, "Value()")

	x := randVec(rng, p)
	got := make([]float64, c.Size())
	c.AddJx(got, x, 2)
	var want mat.VecDense
	want.MulVec(stacked, mat.NewVecDense(p, x))
	want.ScaleVec(2, &want)
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-10, "AddJx")

	y := randVec(rng, c.Size())
	gotT := make([]float64, p)
	c.AddJtx(gotT, y, 1)
	var wantT mat.VecDense
	wantT.MulVec(stacked.T(), mat.NewVecDense(len(y), y))
	assert.InDeltaSlice(t, wantT.RawVector().Data, gotT, 1e-10, "AddJtx")

	grad := make([]float64, p)
	c.AddJtResidual(grad, 1)
	var wantG mat.VecDense
	wantG.MulVec(stacked.T(), mat.NewVecDense(len(value), value))
	assert.InDeltaSlice(t, wantG.RawVector().Data, grad, 1e-10, "AddJtResidual")
}

func TestCost_JtJDenseAndSparseAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(41, 1))
	const p = 23
	c, stacked, _ := buildCost(rng, p)

	require.True(t, c.HasJacobian())

	var want mat.Dense
	want.Mul(stacked.T(), stacked)

	for name, pool := range poolsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			jtj := mat.NewDense(p, p, nil)
			c.AddDenseJtJLower(jtj, 1, pool)
			requireDenseEqual(t, "dense JtJ", lowerOf(jtj), lowerOf(&want), 1e-10)
		})
	}

	trips := c.AddSparseJtJLower(nil, 1)
	for _, tr := range trips {
		require.LessOrEqual(t, tr.Col, tr.Row, "triplet above the diagonal")
	}
	sparse := NewSparseFromTriplets(p, p, trips)
	requireDenseEqual(t, "sparse JtJ", sparse, lowerOf(&want), 1e-10)
}

func TestCost_JtJRequiresJacobian(t *testing.T) {
	c := NewCost()
	c.Add(NewDiffData([]float64{1}, NewIdentityJacobian(1)), 1, "with", false)
	c.Add(NewConstantDiffData([]float64{1}), 1, "without", false)

	require.False(t, c.HasJacobian(), "constant term present")
	assert.Panics(t, func() { c.AddDenseJtJLower(mat.NewDense(1, 1, nil), 1, nil) }, "dense")
	assert.Panics(t, func() { c.AddSparseJtJLower(nil, 1) }, "sparse")
	assert.False(t, NewCost().HasJacobian(), "empty cost")

	// Matrix-free products skip the constant term silently.
	out := make([]float64, 2)
	c.AddJx(out, []float64{3}, 1)
	assert.Equal(t, []float64{3, 0}, out)
}

// =============================================================================
// Reporting Tests
// =============================================================================

func TestCost_String(t *testing.T) {
	c := NewCost()
	c.Add(NewConstantDiffData([]float64{1, 1}), 2, "p2p", false)
	c.Add(NewConstantDiffData([]float64{2}), 1, "", false)

	s := c.String()
	for _, want := range []string{"total: 8", "p2p: 4", "<unnamed>: 4"} {
		assert.Contains(t, s, want)
	}
}

func TestCost_LogBreakdown(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	c := NewCost()
	c.Add(NewConstantDiffData([]float64{1}), 1, "reg", false)
	c.LogBreakdown(context.Background(), slog.LevelDebug)

	assert.Contains(t, buf.String(), "reg: 1")
}
