package rigsolve

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Triplet is a single (row, col, value) entry of a sparse matrix.
type Triplet struct {
	Row, Col int
	Value    float64
}

// SparseMatrix is an immutable matrix in compressed sparse row form.
//
// SparseMatrix implements mat.Matrix so it can be handed to gonum routines
// that only need element access.
type SparseMatrix struct {
	rows, cols int
	rowPtr     []int
	colIdx     []int
	vals       []float64
}

// NewSparseFromTriplets builds a rows×cols sparse matrix. Duplicate
// entries are summed. Entries outside the matrix panic.
func NewSparseFromTriplets(rows, cols int, triplets []Triplet) *SparseMatrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("rigsolve: negative sparse dimensions %dx%d", rows, cols))
	}

	counts := make([]int, rows+1)
	for _, t := range triplets {
		if t.Row < 0 || t.Row >= rows || t.Col < 0 || t.Col >= cols {
			panic(fmt.Sprintf("rigsolve: triplet (%d,%d) outside %dx%d matrix", t.Row, t.Col, rows, cols))
		}
		counts[t.Row+1]++
	}
	for i := range rows {
		counts[i+1] += counts[i]
	}

	colIdx := make([]int, len(triplets))
	vals := make([]float64, len(triplets))
	fill := slices.Clone(counts[:rows])
	for _, t := range triplets {
		k := fill[t.Row]
		colIdx[k] = t.Col
		vals[k] = t.Value
		fill[t.Row]++
	}

	// Sort each row by column and merge duplicates in place.
	m := &SparseMatrix{rows: rows, cols: cols, rowPtr: make([]int, rows+1)}
	type entry struct {
		col int
		val float64
	}
	var row []entry
	out := 0
	for i := range rows {
		row = row[:0]
		for k := counts[i]; k < counts[i+1]; k++ {
			row = append(row, entry{colIdx[k], vals[k]})
		}
		slices.SortFunc(row, func(a, b entry) int { return a.col - b.col })
		for j, e := range row {
			if j > 0 && row[j-1].col == e.col {
				vals[out-1] += e.val
				continue
			}
			colIdx[out] = e.col
			vals[out] = e.val
			out++
		}
		m.rowPtr[i+1] = out
	}
	m.colIdx = colIdx[:out]
	m.vals = vals[:out]
	return m
}

// NewSparseIdentity returns the n×n identity.
func NewSparseIdentity(n int) *SparseMatrix {
	m := &SparseMatrix{
		rows:   n,
		cols:   n,
		rowPtr: make([]int, n+1),
		colIdx: make([]int, n),
		vals:   make([]float64, n),
	}
	for i := range n {
		m.rowPtr[i+1] = i + 1
		m.colIdx[i] = i
		m.vals[i] = 1
	}
	return m
}

// NewSparseFromDense converts a dense matrix, dropping exact zeros.
func NewSparseFromDense(a mat.Matrix) *SparseMatrix {
	r, c := a.Dims()
	m := &SparseMatrix{rows: r, cols: c, rowPtr: make([]int, r+1)}
	for i := range r {
		for j := range c {
			if v := a.At(i, j); v != 0 {
				m.colIdx = append(m.colIdx, j)
				m.vals = append(m.vals, v)
			}
		}
		m.rowPtr[i+1] = len(m.vals)
	}
	return m
}

// Dims returns the matrix dimensions.
func (m *SparseMatrix) Dims() (r, c int) { return m.rows, m.cols }

// At returns the element at row i, column j.
func (m *SparseMatrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	cols := m.colIdx[m.rowPtr[i]:m.rowPtr[i+1]]
	if k, ok := slices.BinarySearch(cols, j); ok {
		return m.vals[m.rowPtr[i]+k]
	}
	return 0
}

// T returns the implicit transpose.
func (m *SparseMatrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored entries.
func (m *SparseMatrix) NNZ() int { return len(m.vals) }

// RowNNZ returns the number of stored entries in row i.
func (m *SparseMatrix) RowNNZ(i int) int { return m.rowPtr[i+1] - m.rowPtr[i] }

// Row returns the column indices and values of row i. The slices alias the
// matrix storage and must not be modified.
func (m *SparseMatrix) Row(i int) ([]int, []float64) {
	lo, hi := m.rowPtr[i], m.rowPtr[i+1]
	return m.colIdx[lo:hi], m.vals[lo:hi]
}

// MulVecAdd computes result += scale·M·x.
func (m *SparseMatrix) MulVecAdd(result, x []float64, scale float64) {
	if len(x) != m.cols || len(result) != m.rows {
		panic(fmt.Sprintf("rigsolve: sparse MulVecAdd shape %dx%d with x=%d result=%d", m.rows, m.cols, len(x), len(result)))
	}
	m.mulRowsAdd(result, x, scale, 0, m.rows)
}

func (m *SparseMatrix) mulRowsAdd(result, x []float64, scale float64, start, end int) {
	for i := start; i < end; i++ {
		var sum float64
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			sum += m.vals[k] * x[m.colIdx[k]]
		}
		result[i] += scale * sum
	}
}

// MulTransVecAdd computes result += scale·Mᵀ·x.
func (m *SparseMatrix) MulTransVecAdd(result, x []float64, scale float64) {
	if len(x) != m.rows || len(result) != m.cols {
		panic(fmt.Sprintf("rigsolve: sparse MulTransVecAdd shape %dx%d with x=%d result=%d", m.rows, m.cols, len(x), len(result)))
	}
	for i := range m.rows {
		xi := scale * x[i]
		if xi == 0 {
			continue
		}
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			result[m.colIdx[k]] += m.vals[k] * xi
		}
	}
}

// Transpose returns Mᵀ as a new sparse matrix.
func (m *SparseMatrix) Transpose() *SparseMatrix {
	t := &SparseMatrix{
		rows:   m.cols,
		cols:   m.rows,
		rowPtr: make([]int, m.cols+1),
		colIdx: make([]int, len(m.vals)),
		vals:   make([]float64, len(m.vals)),
	}
	for _, c := range m.colIdx {
		t.rowPtr[c+1]++
	}
	for i := range m.cols {
		t.rowPtr[i+1] += t.rowPtr[i]
	}
	fill := slices.Clone(t.rowPtr[:m.cols])
	for i := range m.rows {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			c := m.colIdx[k]
			t.colIdx[fill[c]] = i
			t.vals[fill[c]] = m.vals[k]
			fill[c]++
		}
	}
	return t
}

// Mul returns the product M·b.
func (m *SparseMatrix) Mul(b *SparseMatrix) *SparseMatrix {
	if m.cols != b.rows {
		panic(fmt.Sprintf("rigsolve: sparse product shape mismatch %dx%d * %dx%d", m.rows, m.cols, b.rows, b.cols))
	}

	out := &SparseMatrix{rows: m.rows, cols: b.cols, rowPtr: make([]int, m.rows+1)}
	acc := make([]float64, b.cols)
	marker := make([]int, b.cols)
	for i := range marker {
		marker[i] = -1
	}
	var touched []int
	for i := range m.rows {
		touched = touched[:0]
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			a := m.vals[k]
			r := m.colIdx[k]
			for kk := b.rowPtr[r]; kk < b.rowPtr[r+1]; kk++ {
				c := b.colIdx[kk]
				if marker[c] != i {
					marker[c] = i
					acc[c] = 0
					touched = append(touched, c)
				}
				acc[c] += a * b.vals[kk]
			}
		}
		slices.Sort(touched)
		for _, c := range touched {
			out.colIdx = append(out.colIdx, c)
			out.vals = append(out.vals, acc[c])
		}
		out.rowPtr[i+1] = len(out.vals)
	}
	return out
}

// MulDense returns the dense product M·b.
func (m *SparseMatrix) MulDense(b mat.Matrix) *mat.Dense {
	br, bc := b.Dims()
	if m.cols != br {
		panic(fmt.Sprintf("rigsolve: sparse-dense product shape mismatch %dx%d * %dx%d", m.rows, m.cols, br, bc))
	}
	out := mat.NewDense(m.rows, bc, nil)
	for i := range m.rows {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			a := m.vals[k]
			r := m.colIdx[k]
			for j := range bc {
				out.Set(i, j, out.At(i, j)+a*b.At(r, j))
			}
		}
	}
	return out
}

// ToDense returns a dense copy of M.
func (m *SparseMatrix) ToDense() *mat.Dense {
	d := mat.NewDense(m.rows, m.cols, nil)
	for i := range m.rows {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			d.Set(i, m.colIdx[k], m.vals[k])
		}
	}
	return d
}

// Triplets returns the stored entries in row-major order.
func (m *SparseMatrix) Triplets() []Triplet {
	out := make([]Triplet, 0, len(m.vals))
	for i := range m.rows {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			out = append(out, Triplet{Row: i, Col: m.colIdx[k], Value: m.vals[k]})
		}
	}
	return out
}
