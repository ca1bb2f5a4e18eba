package rigsolve

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DiffData is a value vector paired with an optional Jacobian describing how
// the value changes with the optimization variables.
//
// A DiffData is created fresh each iteration by a constraint evaluator and
// handed to a Cost. The Jacobian is shared, never copied.
type DiffData struct {
	value    []float64
	jacobian Jacobian
}

// NewDiffData takes ownership of values. jac may be nil; when present its row
// count must equal len(values).
func NewDiffData(values []float64, jac Jacobian) *DiffData {
	if jac != nil && jac.Rows() != len(values) {
		panic(fmt.Sprintf("rigsolve: Jacobian has %d rows for a value of size %d", jac.Rows(), len(values)))
	}
	return &DiffData{value: values, jacobian: jac}
}

// NewConstantDiffData copies values into a DiffData without derivative.
func NewConstantDiffData(values []float64) *DiffData {
	return &DiffData{value: append([]float64(nil), values...)}
}

// Value returns the value buffer. It must not be modified; use MutableValue.
func (d *DiffData) Value() []float64 { return d.value }

// MutableValue returns the value buffer for in-place edits by the owner.
func (d *DiffData) MutableValue() []float64 { return d.value }

// Size returns the number of elements in the value.
func (d *DiffData) Size() int { return len(d.value) }

// Jacobian returns the derivative, or nil.
func (d *DiffData) Jacobian() Jacobian { return d.jacobian }

// HasJacobian reports whether the value carries a derivative.
func (d *DiffData) HasJacobian() bool { return d.jacobian != nil }

// DiffDataMatrix is a DiffData interpreted as a rows×cols matrix stored in
// column-major order, so a 3×N vertex matrix holds x, y, z of each vertex
// contiguously.
type DiffDataMatrix struct {
	DiffData
	rows, cols int
}

// NewDiffDataMatrix panics unless rows·cols == len(values).
func NewDiffDataMatrix(rows, cols int, values []float64, jac Jacobian) *DiffDataMatrix {
	if rows < 0 || cols < 0 || rows*cols != len(values) {
		panic(fmt.Sprintf("rigsolve: %dx%d matrix cannot hold %d values", rows, cols, len(values)))
	}
	return &DiffDataMatrix{DiffData: *NewDiffData(values, jac), rows: rows, cols: cols}
}

// NewDiffDataMatrixFrom copies m into column-major storage.
func NewDiffDataMatrixFrom(m mat.Matrix, jac Jacobian) *DiffDataMatrix {
	r, c := m.Dims()
	values := make([]float64, r*c)
	for j := range c {
		for i := range r {
			values[i+j*r] = m.At(i, j)
		}
	}
	return NewDiffDataMatrix(r, c, values, jac)
}

// Rows returns the number of matrix rows.
func (d *DiffDataMatrix) Rows() int { return d.rows }

// Cols returns the number of matrix columns.
func (d *DiffDataMatrix) Cols() int { return d.cols }

// At returns element (i, j).
func (d *DiffDataMatrix) At(i, j int) float64 { return d.value[i+j*d.rows] }

// Col returns column j as a slice aliasing the value buffer.
func (d *DiffDataMatrix) Col(j int) []float64 {
	return d.value[j*d.rows : (j+1)*d.rows]
}

// Matrix returns a read-only mat.Matrix view of the value without copying.
func (d *DiffDataMatrix) Matrix() mat.Matrix {
	return colMajorView{rows: d.rows, cols: d.cols, data: d.value}
}

// Dense returns a row-major copy of the value.
func (d *DiffDataMatrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(d.Matrix())
}

// colMajorView adapts a column-major buffer to mat.Matrix.
type colMajorView struct {
	rows, cols int
	data       []float64
}

func (v colMajorView) Dims() (r, c int) { return v.rows, v.cols }

func (v colMajorView) At(i, j int) float64 {
	if i < 0 || i >= v.rows || j < 0 || j >= v.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	return v.data[i+j*v.rows]
}

func (v colMajorView) T() mat.Matrix { return mat.Transpose{Matrix: v} }

// Multiply returns the differentiable product C = A·B.
//
// The Jacobian follows the product rule on the column-major vectorization:
//
//	d vec(C) = (Bᵀ ⊗ I) d vec(A) + (I ⊗ A) d vec(B)
//
// Inputs without a Jacobian contribute no derivative term. Multiply panics if
// A.Cols() != B.Rows().
func Multiply(a, b *DiffDataMatrix) *DiffDataMatrix {
	if a.cols != b.rows {
		panic(fmt.Sprintf("rigsolve: cannot multiply %dx%d by %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	r, k, c := a.rows, a.cols, b.cols

	values := make([]float64, r*c)
	for j := range c {
		for l := range k {
			blj := b.value[l+j*k]
			if blj == 0 {
				continue
			}
			for i := range r {
				values[i+j*r] += a.value[i+l*r] * blj
			}
		}
	}

	var jac Jacobian
	if a.HasJacobian() {
		// row i+j*r depends on A(i,l) with weight B(l,j)
		trips := make([]Triplet, 0, r*c*k)
		for j := range c {
			for l := range k {
				for i := range r {
					trips = append(trips, Triplet{Row: i + j*r, Col: i + l*r, Value: b.value[l+j*k]})
				}
			}
		}
		jac = a.jacobian.Premultiply(NewSparseFromTriplets(r*c, r*k, trips))
	}
	if b.HasJacobian() {
		// row i+j*r depends on B(l,j) with weight A(i,l)
		trips := make([]Triplet, 0, r*c*k)
		for j := range c {
			for l := range k {
				for i := range r {
					trips = append(trips, Triplet{Row: i + j*r, Col: l + j*k, Value: a.value[i+l*r]})
				}
			}
		}
		jac = NewSumJacobian(jac, b.jacobian.Premultiply(NewSparseFromTriplets(r*c, k*c, trips)))
	}

	return NewDiffDataMatrix(r, c, values, jac)
}
