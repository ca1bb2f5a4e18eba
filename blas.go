package rigsolve

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Thread-partitioned matrix-vector and Gram-matrix kernels.
//
// Every routine partitions the rows of its output across the pool's workers.
// A worker reads all inputs but writes only its own output rows, so no
// locking is needed and the result does not depend on the worker count
// beyond floating-point summation order. A nil pool runs single-threaded.

// ParallelNoAliasGEMV computes out = A·x. out must not alias x.
func ParallelNoAliasGEMV(out []float64, a *mat.Dense, x []float64, pool *ThreadPool) {
	gemv(out, a, x, nil, pool)
}

// ParallelNoAliasGEMVAdd computes out = A·x + b. out must not alias x; it
// may alias b.
func ParallelNoAliasGEMVAdd(out []float64, a *mat.Dense, x, b []float64, pool *ThreadPool) {
	if len(b) != len(out) {
		panic(fmt.Sprintf("rigsolve: GEMV offset has %d entries, want %d", len(b), len(out)))
	}
	gemv(out, a, x, b, pool)
}

func gemv(out []float64, a *mat.Dense, x, b []float64, pool *ThreadPool) {
	raw := a.RawMatrix()
	if len(x) != raw.Cols || len(out) != raw.Rows {
		panic(fmt.Sprintf("rigsolve: GEMV shape %dx%d with x=%d out=%d", raw.Rows, raw.Cols, len(x), len(out)))
	}
	pool.ParallelFor(raw.Rows, func(start, end int) {
		for i := start; i < end; i++ {
			row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
			v := floats.Dot(row, x)
			if b != nil {
				v += b[i]
			}
			out[i] = v
		}
	})
}

// ParallelNoAliasSparseGEMV computes out = A·x for a sparse A.
func ParallelNoAliasSparseGEMV(out []float64, a *SparseMatrix, x []float64, pool *ThreadPool) {
	if len(x) != a.cols || len(out) != a.rows {
		panic(fmt.Sprintf("rigsolve: sparse GEMV shape %dx%d with x=%d out=%d", a.rows, a.cols, len(x), len(out)))
	}
	pool.ParallelFor(a.rows, func(start, end int) {
		clear(out[start:end])
		a.mulRowsAdd(out, x, 1, start, end)
	})
}

// ParallelAtALower overwrites the lower triangle of AtA with the lower
// triangle of AᵀA. The strict upper triangle of AtA is left untouched.
func ParallelAtALower(ata, a *mat.Dense, pool *ThreadPool) {
	n := checkGram(ata, a.RawMatrix().Cols)
	raw := ata.RawMatrix()
	pool.parallelForLower(n, func(start, end int) {
		for i := start; i < end; i++ {
			clear(raw.Data[i*raw.Stride : i*raw.Stride+i+1])
		}
		atALowerRows(raw, a.RawMatrix(), 1, start, end)
	})
}

// ParallelAtALowerAdd adds scale·AᵀA to the lower triangle of AtA.
func ParallelAtALowerAdd(ata, a *mat.Dense, scale float64, pool *ThreadPool) {
	n := checkGram(ata, a.RawMatrix().Cols)
	raw := ata.RawMatrix()
	pool.parallelForLower(n, func(start, end int) {
		atALowerRows(raw, a.RawMatrix(), scale, start, end)
	})
}

// atALowerRows accumulates output rows [start, end) of scale·AᵀA.
func atALowerRows(out, a blas64.General, scale float64, start, end int) {
	for k := range a.Rows {
		ak := a.Data[k*a.Stride : k*a.Stride+a.Cols]
		for i := start; i < end; i++ {
			aki := ak[i]
			if aki == 0 {
				continue
			}
			floats.AddScaled(out.Data[i*out.Stride:i*out.Stride+i+1], scale*aki, ak[:i+1])
		}
	}
}

// ParallelSparseAtALowerAdd adds scale·AᵀA to the lower triangle of AtA for
// a sparse A.
func ParallelSparseAtALowerAdd(ata *mat.Dense, a *SparseMatrix, scale float64, pool *ThreadPool) {
	n := checkGram(ata, a.cols)
	at := a.Transpose()
	raw := ata.RawMatrix()
	pool.parallelForLower(n, func(start, end int) {
		for i := start; i < end; i++ {
			out := raw.Data[i*raw.Stride : i*raw.Stride+i+1]
			ks, aki := at.Row(i)
			for p, k := range ks {
				s := scale * aki[p]
				cols, vals := a.Row(k)
				for q, j := range cols {
					if j > i {
						break
					}
					out[j] += s * vals[q]
				}
			}
		}
	})
}

func checkGram(ata *mat.Dense, n int) int {
	r, c := ata.Dims()
	if r != n || c != n {
		panic(fmt.Sprintf("rigsolve: Gram matrix is %dx%d, want %dx%d", r, c, n, n))
	}
	return n
}

// LowerToSymmetric mirrors the lower triangle of m into its upper triangle.
func LowerToSymmetric(m *mat.Dense) *mat.SymDense {
	n, c := m.Dims()
	if n != c {
		panic(fmt.Sprintf("rigsolve: cannot symmetrize %dx%d matrix", n, c))
	}
	s := mat.NewSymDense(n, nil)
	for i := range n {
		for j := 0; j <= i; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s
}
