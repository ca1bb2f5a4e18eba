package rigid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
)

// Degrees of freedom in the order used by free masks.
const (
	RotX = iota
	RotY
	RotZ
	TransX
	TransY
	TransZ
)

var (
	// AllFree frees every degree of freedom.
	AllFree = [6]bool{true, true, true, true, true, true}
	// RotationOnly holds the translation fixed.
	RotationOnly = [6]bool{true, true, true, false, false, false}
	// TranslationOnly holds the rotation fixed.
	TranslationOnly = [6]bool{false, false, false, true, true, true}
)

// rankTolerance is the relative singular value cutoff below which a
// direction of the normal equations is treated as unobservable.
const rankTolerance = 1e-10

// Solve runs one point-to-plane Gauss-Newton step minimizing
//
//	Σ wᵢ·(nᵢ·(R·srcᵢ + t − tgtᵢ))²
//
// with R = dR·R₀ and t = dR·t₀ + dT around current = (R₀, t₀). src, tgt and
// normals are 3×N; weights may be nil for unit weights. If incremental is set
// the increment (dR, dT) is returned instead of the updated transform.
func Solve(src, tgt, normals mat.Matrix, weights []float64, current Transform, incremental bool) Transform {
	return SolveMasked(src, tgt, normals, weights, current, AllFree, incremental)
}

// SolveMasked is Solve with only the degrees of freedom selected by free
// (rx, ry, rz, tx, ty, tz) allowed to move. Directions the correspondences
// cannot observe stay at zero.
func SolveMasked(src, tgt, normals mat.Matrix, weights []float64, current Transform, free [6]bool, incremental bool) Transform {
	n := checkPoints(src, tgt, normals, weights)

	var ne normalEquations
	for i := range n {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		y := current.Apply(column(src, i))
		ne.add(y, column(normals, i), column(tgt, i), w)
	}
	return ne.step(current, free, incremental)
}

func checkPoints(src, tgt, normals mat.Matrix, weights []float64) int {
	n := checkPairs(src, tgt, weights)
	if nr, nc := normals.Dims(); nr != 3 || nc != n {
		panic(fmt.Sprintf("rigid: normals must be 3x%d, got %dx%d", n, nr, nc))
	}
	return n
}

func checkPairs(src, tgt mat.Matrix, weights []float64) int {
	sr, sc := src.Dims()
	tr, tc := tgt.Dims()
	if sr != 3 || tr != 3 || tc != sc {
		panic(fmt.Sprintf("rigid: points must be 3xN, got src %dx%d and tgt %dx%d", sr, sc, tr, tc))
	}
	if weights != nil && len(weights) != sc {
		panic(fmt.Sprintf("rigid: %d weights for %d points", len(weights), sc))
	}
	return sc
}

func column(m mat.Matrix, j int) r3.Vec {
	return r3.Vec{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// normalEquations accumulates JᵀWJ and −JᵀW·r for the linearized residual
// r(x) = n·(y − q) + (y×n)·ω + n·dT with x = (ω, dT).
type normalEquations struct {
	ata   [6][6]float64 // lower triangle
	atb   [6]float64
	count int
}

func (ne *normalEquations) add(y, n, q r3.Vec, w float64) {
	if !(w > 0) {
		return
	}
	c := r3.Cross(y, n)
	row := [6]float64{c.X, c.Y, c.Z, n.X, n.Y, n.Z}
	r0 := r3.Dot(n, r3.Sub(y, q))
	for i := range 6 {
		wi := w * row[i]
		for j := 0; j <= i; j++ {
			ne.ata[i][j] += wi * row[j]
		}
		ne.atb[i] -= wi * r0
	}
	ne.count++
}

// step solves for the free unknowns and applies the increment to current.
func (ne *normalEquations) step(current Transform, free [6]bool, incremental bool) Transform {
	x := ne.solve(free)
	inc := Transform{
		R: rotationFromVector(r3.Vec{X: x[RotX], Y: x[RotY], Z: x[RotZ]}),
		T: r3.Vec{X: x[TransX], Y: x[TransY], Z: x[TransZ]},
	}
	if incremental {
		return inc
	}
	return inc.Compose(current)
}

// solve returns the minimum-norm least-squares solution over the free
// unknowns using a truncated SVD. Fixed unknowns are zero.
func (ne *normalEquations) solve(free [6]bool) [6]float64 {
	var x [6]float64
	idx := make([]int, 0, 6)
	for i, f := range free {
		if f {
			idx = append(idx, i)
		}
	}
	m := len(idx)
	if m == 0 || ne.count == 0 {
		return x
	}

	a := mat.NewSymDense(m, nil)
	b := make([]float64, m)
	for i, gi := range idx {
		for j := 0; j <= i; j++ {
			a.SetSym(i, j, ne.ata[gi][idx[j]])
		}
		b[i] = ne.atb[gi]
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		rigsolve.Logger().Warn("rigid: SVD failed to converge", "unknowns", m)
		return x
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rank := 0
	for _, sv := range s {
		if sv > rankTolerance*s[0] {
			rank++
		}
	}
	if rank < m {
		rigsolve.Logger().Debug("rigid: rank-deficient system", "rank", rank, "unknowns", m, "points", ne.count)
	}

	for k := range rank {
		var utb float64
		for i := range m {
			utb += u.At(i, k) * b[i]
		}
		coef := utb / s[k]
		for i, gi := range idx {
			x[gi] += coef * v.At(i, k)
		}
	}
	return x
}
