package rigid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// LaneWidth is the number of points per lane of a FlatPoints buffer.
const LaneWidth = 4

// Float is the element type of flat point buffers.
type Float interface {
	~float32 | ~float64
}

// FlatPoints stores correspondences as structure-of-arrays lanes for hot
// loops. Every slice has the same length, a multiple of LaneWidth; padding
// points beyond Len carry zero weight.
type FlatPoints[T Float] struct {
	SrcX, SrcY, SrcZ []T
	TgtX, TgtY, TgtZ []T
	NrmX, NrmY, NrmZ []T
	Weight           []T

	n int
}

// NewFlatPoints allocates lanes for n points with unit weights.
func NewFlatPoints[T Float](n int) *FlatPoints[T] {
	padded := (n + LaneWidth - 1) / LaneWidth * LaneWidth
	alloc := func() []T { return make([]T, padded) }
	f := &FlatPoints[T]{
		SrcX: alloc(), SrcY: alloc(), SrcZ: alloc(),
		TgtX: alloc(), TgtY: alloc(), TgtZ: alloc(),
		NrmX: alloc(), NrmY: alloc(), NrmZ: alloc(),
		Weight: alloc(),
		n:      n,
	}
	for i := range n {
		f.Weight[i] = 1
	}
	return f
}

// Len returns the number of points, excluding padding.
func (f *FlatPoints[T]) Len() int { return f.n }

// Set stores point i, narrowing the values to T.
func (f *FlatPoints[T]) Set(i int, src, tgt, normal r3.Vec, weight float64) {
	if i < 0 || i >= f.n {
		panic(fmt.Sprintf("rigid: flat point %d out of range [0,%d)", i, f.n))
	}
	f.SrcX[i], f.SrcY[i], f.SrcZ[i] = T(src.X), T(src.Y), T(src.Z)
	f.TgtX[i], f.TgtY[i], f.TgtZ[i] = T(tgt.X), T(tgt.Y), T(tgt.Z)
	f.NrmX[i], f.NrmY[i], f.NrmZ[i] = T(normal.X), T(normal.Y), T(normal.Z)
	f.Weight[i] = T(weight)
}

func (f *FlatPoints[T]) check() int {
	size := len(f.SrcX)
	for _, lane := range [][]T{f.SrcY, f.SrcZ, f.TgtX, f.TgtY, f.TgtZ, f.NrmX, f.NrmY, f.NrmZ, f.Weight} {
		if len(lane) != size {
			panic(fmt.Sprintf("rigid: flat lanes have lengths %d and %d", size, len(lane)))
		}
	}
	if size%LaneWidth != 0 {
		panic(fmt.Sprintf("rigid: flat lane length %d is not a multiple of %d", size, LaneWidth))
	}
	if f.n > size {
		panic(fmt.Sprintf("rigid: %d points in lanes of length %d", f.n, size))
	}
	return size
}

// SolveFlat is Solve over flat lanes with every degree of freedom free,
// returning the updated transform. Values are widened to float64 before
// accumulation, so float32 buffers only lose precision in storage.
func SolveFlat[T Float](pts *FlatPoints[T], current Transform) Transform {
	size := pts.check()

	var ne normalEquations
	for base := 0; base < size; base += LaneWidth {
		for l := base; l < base+LaneWidth && l < pts.n; l++ {
			src := r3.Vec{X: float64(pts.SrcX[l]), Y: float64(pts.SrcY[l]), Z: float64(pts.SrcZ[l])}
			tgt := r3.Vec{X: float64(pts.TgtX[l]), Y: float64(pts.TgtY[l]), Z: float64(pts.TgtZ[l])}
			nrm := r3.Vec{X: float64(pts.NrmX[l]), Y: float64(pts.NrmY[l]), Z: float64(pts.NrmZ[l])}
			ne.add(current.Apply(src), nrm, tgt, float64(pts.Weight[l]))
		}
	}
	return ne.step(current, AllFree, false)
}
