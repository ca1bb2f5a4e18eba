package rigid

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
)

// SolvePointToPoint returns the rigid transform minimizing
// Σ wᵢ·‖R·srcᵢ + t − tgtᵢ‖² in closed form (Kabsch). src and tgt are 3×N;
// weights may be nil. It is used to initialize point-to-plane iterations.
// Zero total weight returns the identity.
func SolvePointToPoint(src, tgt mat.Matrix, weights []float64) Transform {
	sc := checkPairs(src, tgt, weights)

	weight := func(i int) float64 {
		if weights == nil {
			return 1
		}
		return max(weights[i], 0)
	}

	var total float64
	var cs, ct r3.Vec
	for i := range sc {
		w := weight(i)
		total += w
		cs = r3.Add(cs, r3.Scale(w, column(src, i)))
		ct = r3.Add(ct, r3.Scale(w, column(tgt, i)))
	}
	if total == 0 {
		return Identity()
	}
	cs = r3.Scale(1/total, cs)
	ct = r3.Scale(1/total, ct)

	// H = Σ w·(p − c̄p)(q − c̄q)ᵀ
	h := mat.NewDense(3, 3, nil)
	for i := range sc {
		w := weight(i)
		if w == 0 {
			continue
		}
		p := r3.Sub(column(src, i), cs)
		q := r3.Sub(column(tgt, i), ct)
		pv := [3]float64{p.X, p.Y, p.Z}
		qv := [3]float64{q.X, q.Y, q.Z}
		for a := range 3 {
			for b := range 3 {
				h.Set(a, b, h.At(a, b)+w*pv[a]*qv[b])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		rigsolve.Logger().Warn("rigid: SVD failed to converge in point-to-point solve")
		return Identity()
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V·diag(1, 1, d)·Uᵀ with d correcting reflections.
	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := range 3 {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	t := Transform{R: &r}
	t.T = r3.Sub(ct, t.Rotate(cs))
	return t
}
