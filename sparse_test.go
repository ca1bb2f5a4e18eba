package rigsolve

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewSparseFromTriplets_SumsDuplicates(t *testing.T) {
	m := NewSparseFromTriplets(2, 3, []Triplet{
		{Row: 1, Col: 2, Value: 1},
		{Row: 0, Col: 1, Value: 2},
		{Row: 1, Col: 2, Value: 3},
		{Row: 1, Col: 0, Value: -1},
	})

	assert.Equal(t, 3, m.NNZ())
	want := mat.NewDense(2, 3, []float64{
		0, 2, 0,
		-1, 0, 4,
	})
	requireDenseEqual(t, "triplets", m, want, 0)

	cols, _ := m.Row(1)
	assert.Equal(t, []int{0, 2}, cols, "Row(1) columns must be sorted")
}

func TestNewSparseFromTriplets_OutOfRange(t *testing.T) {
	assert.Panics(t, func() { NewSparseFromTriplets(2, 2, []Triplet{{Row: 2, Col: 0, Value: 1}}) }, "row")
	assert.Panics(t, func() { NewSparseFromTriplets(2, 2, []Triplet{{Row: 0, Col: -1, Value: 1}}) }, "col")
}

func TestSparseMatrix_Transpose(t *testing.T) {
	rng := rand.New(rand.NewPCG(10, 1))
	m := randSparse(rng, 13, 29, 0.2)
	requireDenseEqual(t, "transpose", m.Transpose(), m.T(), 0)
}

func TestSparseMatrix_Mul(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 1))
	a := randSparse(rng, 20, 15, 0.3)
	b := randSparse(rng, 15, 25, 0.3)

	var want mat.Dense
	want.Mul(a.ToDense(), b.ToDense())
	requireDenseEqual(t, "A·B", a.Mul(b), &want, 1e-12)

	d := randDense(rng, 15, 4)
	want.Reset()
	want.Mul(a.ToDense(), d)
	requireDenseEqual(t, "A·D", a.MulDense(d), &want, 1e-12)

	assert.Panics(t, func() { a.Mul(a) }, "shape mismatch")
}

func TestSparseMatrix_MulVec(t *testing.T) {
	rng := rand.New(rand.NewPCG(12, 1))
	m := randSparse(rng, 30, 20, 0.25)
	x := randVec(rng, 20)
	y := randVec(rng, 30)

	got := make([]float64, 30)
	m.MulVecAdd(got, x, 2)
	var want mat.VecDense
	want.MulVec(m.ToDense(), mat.NewVecDense(20, x))
	want.ScaleVec(2, &want)
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-12, "2·M·x")

	gotT := make([]float64, 20)
	m.MulTransVecAdd(gotT, y, -1)
	var wantT mat.VecDense
	wantT.MulVec(m.ToDense().T(), mat.NewVecDense(30, y))
	wantT.ScaleVec(-1, &wantT)
	assert.InDeltaSlice(t, wantT.RawVector().Data, gotT, 1e-12, "-Mᵀ·y")
}

func TestNewSparseIdentity(t *testing.T) {
	id := NewSparseIdentity(4)
	for i := range 4 {
		for j := range 4 {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.Equal(t, want, id.At(i, j), "At(%d,%d)", i, j)
		}
	}
}
