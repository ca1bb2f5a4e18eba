package rigsolve

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// checkJacobian compares every operation of j against the dense reference.
func checkJacobian(t *testing.T, name string, j Jacobian, want *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewPCG(99, 1))
	r, c := want.Dims()

	require.Equal(t, [2]int{r, c}, [2]int{j.Rows(), j.Cols()}, "%s: dims", name)

	x := randVec(rng, c)
	got := make([]float64, r)
	j.AddJx(got, x, 3)
	var wantJx mat.VecDense
	wantJx.MulVec(want, mat.NewVecDense(c, x))
	wantJx.ScaleVec(3, &wantJx)
	assert.InDeltaSlice(t, wantJx.RawVector().Data, got, 1e-10, "%s AddJx", name)

	y := randVec(rng, r)
	gotT := make([]float64, c)
	j.AddJtx(gotT, y, 0.5)
	var wantJtx mat.VecDense
	wantJtx.MulVec(want.T(), mat.NewVecDense(r, y))
	wantJtx.ScaleVec(0.5, &wantJtx)
	assert.InDeltaSlice(t, wantJtx.RawVector().Data, gotT, 1e-10, "%s AddJtx", name)

	requireDenseEqual(t, name+" AsSparse", j.AsSparse(), want, 1e-10)
}

func TestJacobianVariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(20, 1))
	dense := randDense(rng, 12, 7)
	sparse := randSparse(rng, 12, 7, 0.3)
	outer := randSparse(rng, 5, 12, 0.4)

	var composed mat.Dense
	composed.Mul(outer.ToDense(), dense)

	var sum mat.Dense
	sum.Add(dense, sparse.ToDense())

	var composedSparse mat.Dense
	composedSparse.Mul(outer.ToDense(), sparse.ToDense())

	tests := []struct {
		name string
		jac  Jacobian
		want *mat.Dense
	}{
		{"dense", NewDenseJacobian(dense), dense},
		{"sparse", NewSparseJacobian(sparse), sparse.ToDense()},
		{"composed", NewComposedJacobian(outer, NewDenseJacobian(dense)), &composed},
		{"dense premultiply", NewDenseJacobian(dense).Premultiply(outer), &composed},
		{"sparse premultiply", NewSparseJacobian(sparse).Premultiply(outer), &composedSparse},
		{"sum", NewSumJacobian(NewDenseJacobian(dense), NewSparseJacobian(sparse)), &sum},
		{"identity", NewIdentityJacobian(7), NewSparseIdentity(7).ToDense()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkJacobian(t, tt.name, tt.jac, tt.want)
		})
	}
}

func TestComposedJacobian_Chain(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 1))
	dense := randDense(rng, 10, 4)
	s1 := randSparse(rng, 8, 10, 0.4)
	s2 := randSparse(rng, 3, 8, 0.5)

	var inner, want mat.Dense
	inner.Mul(s1.ToDense(), dense)
	want.Mul(s2.ToDense(), &inner)

	j := NewDenseJacobian(dense).Premultiply(s1).Premultiply(s2)
	checkJacobian(t, "s2·s1·D", j, &want)

	require.IsType(t, &ComposedJacobian{}, j)
	d, ok := j.(*ComposedJacobian).dense()
	require.True(t, ok, "composed Jacobian over dense inner should materialize densely")
	requireDenseEqual(t, "dense()", d, &want, 1e-10)
}

func TestNewSumJacobian_Nil(t *testing.T) {
	j := NewIdentityJacobian(3)
	assert.Same(t, j, NewSumJacobian(nil, j))
	assert.Same(t, j, NewSumJacobian(j, nil))
	assert.Panics(t, func() { NewSumJacobian(j, NewIdentityJacobian(4)) }, "shape mismatch")
}

func TestComposedJacobian_ShapeMismatch(t *testing.T) {
	assert.Panics(t, func() {
		NewComposedJacobian(NewSparseIdentity(3), NewIdentityJacobian(4))
	})
}
