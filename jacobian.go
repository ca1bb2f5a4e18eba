package rigsolve

import (
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Jacobian is a linear operator mapping a perturbation of the optimization
// variables to a perturbation of a differentiable value.
//
// Jacobians are immutable once built and are shared by pointer between every
// DiffData that traces back to the same upstream variables. Implementations
// must be safe for concurrent reads.
type Jacobian interface {
	// Rows returns the size of the value the Jacobian belongs to.
	Rows() int

	// Cols returns the number of optimization variables.
	Cols() int

	// AddJx computes result += scale·J·x.
	AddJx(result, x []float64, scale float64)

	// AddJtx computes result += scale·Jᵀ·x.
	AddJtx(result, x []float64, scale float64)

	// Premultiply returns the chain-rule composition S·J.
	Premultiply(s *SparseMatrix) Jacobian

	// AsSparse materializes J as a sparse matrix.
	AsSparse() *SparseMatrix
}

// DenseJacobian stores J as a dense gonum matrix. Used for low-dimensional
// variable spaces such as rigid or blend-model coefficients.
type DenseJacobian struct {
	m *mat.Dense

	once   sync.Once
	sparse *SparseMatrix
}

// NewDenseJacobian wraps m. The caller must not modify m afterwards.
func NewDenseJacobian(m *mat.Dense) *DenseJacobian {
	return &DenseJacobian{m: m}
}

// Dense returns the underlying matrix. It must not be modified.
func (j *DenseJacobian) Dense() *mat.Dense { return j.m }

func (j *DenseJacobian) Rows() int { r, _ := j.m.Dims(); return r }
func (j *DenseJacobian) Cols() int { _, c := j.m.Dims(); return c }

func (j *DenseJacobian) AddJx(result, x []float64, scale float64) {
	r, c := j.m.Dims()
	checkOperand("AddJx", r, c, len(result), len(x))
	var tmp mat.VecDense
	tmp.MulVec(j.m, mat.NewVecDense(c, x))
	floats.AddScaled(result, scale, tmp.RawVector().Data)
}

func (j *DenseJacobian) AddJtx(result, x []float64, scale float64) {
	r, c := j.m.Dims()
	checkOperand("AddJtx", c, r, len(result), len(x))
	var tmp mat.VecDense
	tmp.MulVec(j.m.T(), mat.NewVecDense(r, x))
	floats.AddScaled(result, scale, tmp.RawVector().Data)
}

// Premultiply defers the product so that a sparse selection of a tall dense
// Jacobian never allocates the dense intermediate.
func (j *DenseJacobian) Premultiply(s *SparseMatrix) Jacobian {
	return NewComposedJacobian(s, j)
}

func (j *DenseJacobian) AsSparse() *SparseMatrix {
	j.once.Do(func() { j.sparse = NewSparseFromDense(j.m) })
	return j.sparse
}

// SparseJacobian stores J in CSR form. This is the common case for
// per-vertex derivatives where each residual touches a handful of variables.
type SparseJacobian struct {
	m *SparseMatrix
}

// NewSparseJacobian wraps m.
func NewSparseJacobian(m *SparseMatrix) *SparseJacobian {
	return &SparseJacobian{m: m}
}

// NewIdentityJacobian returns the n×n identity, the derivative of a value
// that is itself the optimization variable.
func NewIdentityJacobian(n int) *SparseJacobian {
	return &SparseJacobian{m: NewSparseIdentity(n)}
}

func (j *SparseJacobian) Rows() int { return j.m.rows }
func (j *SparseJacobian) Cols() int { return j.m.cols }

func (j *SparseJacobian) AddJx(result, x []float64, scale float64) {
	j.m.MulVecAdd(result, x, scale)
}

func (j *SparseJacobian) AddJtx(result, x []float64, scale float64) {
	j.m.MulTransVecAdd(result, x, scale)
}

func (j *SparseJacobian) Premultiply(s *SparseMatrix) Jacobian {
	return &SparseJacobian{m: s.Mul(j.m)}
}

func (j *SparseJacobian) AsSparse() *SparseMatrix { return j.m }

// ComposedJacobian is the lazy product Outer·Inner.
type ComposedJacobian struct {
	outer *SparseMatrix
	inner Jacobian

	once   sync.Once
	sparse *SparseMatrix
}

// NewComposedJacobian returns outer·inner without evaluating the product.
func NewComposedJacobian(outer *SparseMatrix, inner Jacobian) *ComposedJacobian {
	if outer.cols != inner.Rows() {
		panic(fmt.Sprintf("rigsolve: cannot compose %dx%d with Jacobian of %d rows", outer.rows, outer.cols, inner.Rows()))
	}
	return &ComposedJacobian{outer: outer, inner: inner}
}

func (j *ComposedJacobian) Rows() int { return j.outer.rows }
func (j *ComposedJacobian) Cols() int { return j.inner.Cols() }

func (j *ComposedJacobian) AddJx(result, x []float64, scale float64) {
	tmp := make([]float64, j.inner.Rows())
	j.inner.AddJx(tmp, x, 1)
	j.outer.MulVecAdd(result, tmp, scale)
}

func (j *ComposedJacobian) AddJtx(result, x []float64, scale float64) {
	tmp := make([]float64, j.outer.cols)
	j.outer.MulTransVecAdd(tmp, x, 1)
	j.inner.AddJtx(result, tmp, scale)
}

func (j *ComposedJacobian) Premultiply(s *SparseMatrix) Jacobian {
	return NewComposedJacobian(s.Mul(j.outer), j.inner)
}

func (j *ComposedJacobian) AsSparse() *SparseMatrix {
	j.once.Do(func() { j.sparse = j.outer.Mul(j.inner.AsSparse()) })
	return j.sparse
}

// dense returns Outer·Inner as a dense matrix when Inner is dense.
func (j *ComposedJacobian) dense() (*mat.Dense, bool) {
	d, ok := j.inner.(*DenseJacobian)
	if !ok {
		return nil, false
	}
	return j.outer.MulDense(d.m), true
}

// SumJacobian is the lazy sum A+B of two Jacobians over the same variables.
// It appears when a residual depends on two differentiable inputs.
type SumJacobian struct {
	a, b Jacobian

	once   sync.Once
	sparse *SparseMatrix
}

// NewSumJacobian returns a+b. A nil operand yields the other operand.
func NewSumJacobian(a, b Jacobian) Jacobian {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		panic(fmt.Sprintf("rigsolve: cannot add Jacobians %dx%d and %dx%d", a.Rows(), a.Cols(), b.Rows(), b.Cols()))
	}
	return &SumJacobian{a: a, b: b}
}

func (j *SumJacobian) Rows() int { return j.a.Rows() }
func (j *SumJacobian) Cols() int { return j.a.Cols() }

func (j *SumJacobian) AddJx(result, x []float64, scale float64) {
	j.a.AddJx(result, x, scale)
	j.b.AddJx(result, x, scale)
}

func (j *SumJacobian) AddJtx(result, x []float64, scale float64) {
	j.a.AddJtx(result, x, scale)
	j.b.AddJtx(result, x, scale)
}

func (j *SumJacobian) Premultiply(s *SparseMatrix) Jacobian {
	return &SumJacobian{a: j.a.Premultiply(s), b: j.b.Premultiply(s)}
}

func (j *SumJacobian) AsSparse() *SparseMatrix {
	j.once.Do(func() {
		sa, sb := j.a.AsSparse(), j.b.AsSparse()
		trips := slices.Concat(sa.Triplets(), sb.Triplets())
		j.sparse = NewSparseFromTriplets(sa.rows, sa.cols, trips)
	})
	return j.sparse
}

func checkOperand(op string, rows, cols, nResult, nX int) {
	if nResult != rows || nX != cols {
		panic(fmt.Sprintf("rigsolve: %s expects result=%d x=%d, got result=%d x=%d", op, rows, cols, nResult, nX))
	}
}
