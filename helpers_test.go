package rigsolve

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(r, c, data)
}

// randSparse returns a sparse matrix with roughly density·r·c entries.
func randSparse(rng *rand.Rand, r, c int, density float64) *SparseMatrix {
	var trips []Triplet
	for i := range r {
		for j := range c {
			if rng.Float64() < density {
				trips = append(trips, Triplet{Row: i, Col: j, Value: rng.Float64()*2 - 1})
			}
		}
	}
	return NewSparseFromTriplets(r, c, trips)
}

func randVec(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

// requireDenseEqual compares got and want element-wise. A delta of 0 demands
// exact equality.
func requireDenseEqual(t *testing.T, name string, got, want mat.Matrix, delta float64) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	require.Equal(t, [2]int{wr, wc}, [2]int{gr, gc}, "%s: dims", name)
	for i := range gr {
		for j := range gc {
			require.InDelta(t, want.At(i, j), got.At(i, j), delta, "%s: (%d,%d)", name, i, j)
		}
	}
}

// poolsUnderTest returns a nil pool plus pools of 1, 2, 4 and 8 workers.
func poolsUnderTest(t *testing.T) map[string]*ThreadPool {
	t.Helper()
	pools := map[string]*ThreadPool{"nil": nil}
	for _, n := range []int{1, 2, 4, 8} {
		p := NewThreadPool(n)
		t.Cleanup(p.Close)
		pools[fmt.Sprintf("%d workers", n)] = p
	}
	return pools
}

func lowerOf(m mat.Matrix) *mat.Dense {
	n, _ := m.Dims()
	out := mat.NewDense(n, n, nil)
	for i := range n {
		for j := 0; j <= i; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}
