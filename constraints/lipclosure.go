package constraints

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/geometry"
)

// LipClosureConstraints pulls the upper and lower lip together when the lip
// landmark contours show that the mouth is closed.
//
// Closure cannot be determined from every frame, so the data is only valid
// after CalculateLipClosureData detected contact. Evaluate on invalid data
// yields a zero-length residual.
type LipClosureConstraints struct {
	// Neighbours is the number of nearest surface vertices searched per lip
	// vertex. Values below 1 use DefaultCollisionNeighbours.
	Neighbours int
	// CaptureDistance drops lip vertices farther than this from the opposite
	// surface. Zero means unlimited.
	CaptureDistance float64

	upperLip, lowerLip             []int
	lowerTriangles, upperTriangles []geometry.Triangle

	valid bool
	gap   float64
	pairs []surfacePair
}

// NewLipClosureConstraints returns constraints with default search settings
// and no topology.
func NewLipClosureConstraints() *LipClosureConstraints {
	return &LipClosureConstraints{Neighbours: DefaultCollisionNeighbours, gap: math.Inf(1)}
}

// SetTopology sets the lip vertex sets and the surfaces they close onto:
// upper lip vertices are pulled onto lowerTriangles and lower lip vertices
// onto upperTriangles. It invalidates any closure data.
func (l *LipClosureConstraints) SetTopology(upperLip, lowerLip []int, lowerTriangles, upperTriangles []geometry.Triangle) {
	l.upperLip = slices.Clone(upperLip)
	l.lowerLip = slices.Clone(lowerLip)
	l.lowerTriangles = slices.Clone(lowerTriangles)
	l.upperTriangles = slices.Clone(upperTriangles)
	l.invalidate()
}

// Clear drops the closure data. The topology is kept.
func (l *LipClosureConstraints) Clear() {
	l.invalidate()
}

func (l *LipClosureConstraints) invalidate() {
	l.valid = false
	l.gap = math.Inf(1)
	l.pairs = l.pairs[:0]
}

// ValidLipClosure reports whether the last CalculateLipClosureData detected
// lip contact.
func (l *LipClosureConstraints) ValidLipClosure() bool { return l.valid }

// ContourGap returns the smallest distance between the upper and lower
// contours seen by the last CalculateLipClosureData, or +Inf.
func (l *LipClosureConstraints) ContourGap() float64 { return l.gap }

// NumPairs returns the number of lip vertices currently constrained.
func (l *LipClosureConstraints) NumPairs() int { return len(l.pairs) }

// CalculateLipClosureData decides contact from the 3×K upper and lower lip
// landmark contours: the lips are closed when the contours come within
// contactThreshold of each other. A nil contour means the landmarks were not
// detected and leaves the data invalid. On contact every lip vertex is paired with
// its closest point on the opposite lip surface. It returns
// ValidLipClosure().
//
// Topology referencing vertices outside the mesh panics.
func (l *LipClosureConstraints) CalculateLipClosureData(vertices []float64, upperContour, lowerContour mat.Matrix, contactThreshold float64) bool {
	nv := geometry.NumVertices(vertices)
	checkIDs("upper lip", l.upperLip, nv)
	checkIDs("lower lip", l.lowerLip, nv)
	geometry.ValidateTriangles(l.lowerTriangles, nv)
	geometry.ValidateTriangles(l.upperTriangles, nv)

	l.invalidate()
	l.gap = contourGap(upperContour, lowerContour)
	if !(l.gap <= contactThreshold) {
		return false
	}

	l.pairs = l.closeOnto(l.pairs, vertices, l.upperLip, l.lowerTriangles)
	l.pairs = l.closeOnto(l.pairs, vertices, l.lowerLip, l.upperTriangles)
	l.valid = true

	rigsolve.Logger().Debug("constraints: lip closure", "gap", l.gap, "pairs", len(l.pairs))
	return true
}

func (l *LipClosureConstraints) closeOnto(pairs []surfacePair, vertices []float64, ids []int, triangles []geometry.Triangle) []surfacePair {
	if len(ids) == 0 || len(triangles) == 0 {
		return pairs
	}
	neighbours := l.Neighbours
	if neighbours < 1 {
		neighbours = DefaultCollisionNeighbours
	}
	query := geometry.NewSurfaceQuery(vertices, triangles, neighbours)
	capture2 := math.Inf(1)
	if l.CaptureDistance > 0 {
		capture2 = l.CaptureDistance * l.CaptureDistance
	}

	for _, id := range ids {
		p := geometry.Vertex(vertices, id)
		bc, q, ok := query.ClosestFunc(p, func(_ int, tri geometry.Triangle) bool {
			return !slices.Contains(tri[:], id)
		})
		if !ok || r3.Norm2(r3.Sub(p, q)) > capture2 {
			continue
		}
		pairs = append(pairs, surfacePair{vertex: id, target: bc})
	}
	return pairs
}

// Evaluate returns 3 residuals per lip vertex, sqrt(weight)·(v − bc(v)),
// pulling each lip vertex onto the opposite lip surface. Invalid closure data
// yields a zero-length residual.
func (l *LipClosureConstraints) Evaluate(vertices *rigsolve.DiffDataMatrix, weight float64) *rigsolve.DiffData {
	checkVertices("Evaluate", vertices)
	if !l.valid {
		return emptyResidual()
	}
	nv := vertices.Cols()
	for _, p := range l.pairs {
		if p.vertex < 0 || p.vertex >= nv {
			panic(fmt.Sprintf("constraints: lip vertex %d outside mesh of %d vertices", p.vertex, nv))
		}
		p.target.Validate(nv)
	}
	return evaluateSurfacePairs(vertices, l.pairs, weight)
}

// contourGap returns +Inf when either contour is missing.
func contourGap(upper, lower mat.Matrix) float64 {
	if upper == nil || lower == nil {
		return math.Inf(1)
	}
	ur, uc := upper.Dims()
	lr, lc := lower.Dims()
	if ur != 3 || lr != 3 {
		panic(fmt.Sprintf("constraints: lip contours must be 3xK, got %dx%d and %dx%d", ur, uc, lr, lc))
	}
	gap := math.Inf(1)
	for i := range uc {
		u := r3.Vec{X: upper.At(0, i), Y: upper.At(1, i), Z: upper.At(2, i)}
		for j := range lc {
			v := r3.Vec{X: lower.At(0, j), Y: lower.At(1, j), Z: lower.At(2, j)}
			gap = min(gap, r3.Norm(r3.Sub(u, v)))
		}
	}
	return gap
}

func checkIDs(what string, ids []int, n int) {
	for _, id := range ids {
		if id < 0 || id >= n {
			panic(fmt.Sprintf("constraints: %s vertex %d outside mesh of %d vertices", what, id, n))
		}
	}
}
