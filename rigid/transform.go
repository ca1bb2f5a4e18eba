// Package rigid solves for rigid transforms aligning source points to target
// points or planes.
//
// The point-to-plane solvers run exactly one Gauss-Newton linearization
// around the current transform. Iterating to convergence is left to the
// caller, see internal/fitting.
package rigid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform maps p to R·p + T.
type Transform struct {
	R *mat.Dense // 3×3 rotation
	T r3.Vec
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{R: eye3()}
}

// NewTransform copies r, which must be 3×3.
func NewTransform(r mat.Matrix, t r3.Vec) Transform {
	if rr, rc := r.Dims(); rr != 3 || rc != 3 {
		panic(fmt.Sprintf("rigid: rotation must be 3x3, got %dx%d", rr, rc))
	}
	return Transform{R: mat.DenseCopyOf(r), T: t}
}

// Rotation returns the rotation by |omega| radians about omega.
func Rotation(omega r3.Vec) Transform {
	return Transform{R: rotationFromVector(omega)}
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// rotation returns R, treating a nil R as the identity.
func (t Transform) rotation() *mat.Dense {
	if t.R == nil {
		return eye3()
	}
	return t.R
}

// Rotate returns R·p.
func (t Transform) Rotate(p r3.Vec) r3.Vec {
	if t.R == nil {
		return p
	}
	r := t.R
	return r3.Vec{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z,
	}
}

// Apply returns R·p + T.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.Rotate(p), t.T)
}

// ApplyTo transforms a flattened 3×N vertex buffer in place.
func (t Transform) ApplyTo(vertices []float64) {
	if len(vertices)%3 != 0 {
		panic(fmt.Sprintf("rigid: vertex buffer of length %d is not 3xN", len(vertices)))
	}
	for i := 0; i < len(vertices); i += 3 {
		p := t.Apply(r3.Vec{X: vertices[i], Y: vertices[i+1], Z: vertices[i+2]})
		vertices[i], vertices[i+1], vertices[i+2] = p.X, p.Y, p.Z
	}
}

// Compose returns the transform applying u first, then t.
func (t Transform) Compose(u Transform) Transform {
	var r mat.Dense
	r.Mul(t.rotation(), u.rotation())
	return Transform{R: &r, T: t.Apply(u.T)}
}

// Inverse returns the inverse rigid transform (Rᵀ, −Rᵀ·T).
func (t Transform) Inverse() Transform {
	rt := mat.DenseCopyOf(t.rotation().T())
	inv := Transform{R: rt}
	inv.T = r3.Scale(-1, inv.Rotate(t.T))
	return inv
}

// String formats the transform for logs.
func (t Transform) String() string {
	r := t.rotation()
	return fmt.Sprintf("R=[%.6g %.6g %.6g; %.6g %.6g %.6g; %.6g %.6g %.6g] T=(%.6g, %.6g, %.6g)",
		r.At(0, 0), r.At(0, 1), r.At(0, 2),
		r.At(1, 0), r.At(1, 1), r.At(1, 2),
		r.At(2, 0), r.At(2, 1), r.At(2, 2),
		t.T.X, t.T.Y, t.T.Z)
}

// rotationFromVector returns the rotation by |ω| about ω/|ω|.
func rotationFromVector(omega r3.Vec) *mat.Dense {
	angle := r3.Norm(omega)
	if angle == 0 {
		return eye3()
	}
	rot := r3.NewRotation(angle, r3.Unit(omega))
	m := mat.NewDense(3, 3, nil)
	for j, e := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		c := rot.Rotate(e)
		m.Set(0, j, c.X)
		m.Set(1, j, c.Y)
		m.Set(2, j, c.Z)
	}
	return m
}
