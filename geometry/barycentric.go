// Package geometry provides the mesh primitives shared by the constraint
// evaluators: barycentric coordinates, closest points on triangles, vertex
// normals and a kd-tree index over vertex subsets.
//
// Vertex buffers are column-major 3×N matrices flattened to []float64, i.e.
// x, y, z of vertex i live at 3i, 3i+1, 3i+2.
package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle holds three vertex indices.
type Triangle [3]int

// BarycentricCoordinates identifies a point as an affine combination of the
// vertices of one mesh triangle. Weights may be negative, which extrapolates
// outside the triangle.
type BarycentricCoordinates struct {
	Indices [3]int
	Weights [3]float64
	Face    int
}

// NewBarycentricCoordinates returns coordinates on triangle tri of face face.
func NewBarycentricCoordinates(tri Triangle, weights [3]float64, face int) BarycentricCoordinates {
	return BarycentricCoordinates{Indices: tri, Weights: weights, Face: face}
}

// Evaluate returns Σ wₖ·v[indexₖ].
func (bc BarycentricCoordinates) Evaluate(vertices []float64) r3.Vec {
	var p r3.Vec
	for k := range 3 {
		p = r3.Add(p, r3.Scale(bc.Weights[k], Vertex(vertices, bc.Indices[k])))
	}
	return p
}

// Validate panics if any index is outside [0, numVertices).
func (bc BarycentricCoordinates) Validate(numVertices int) {
	for _, idx := range bc.Indices {
		if idx < 0 || idx >= numVertices {
			panic(fmt.Sprintf("geometry: barycentric index %d outside mesh of %d vertices (face %d)", idx, numVertices, bc.Face))
		}
	}
}

// Vertex returns vertex i of a flattened 3×N buffer.
func Vertex(vertices []float64, i int) r3.Vec {
	return r3.Vec{X: vertices[3*i], Y: vertices[3*i+1], Z: vertices[3*i+2]}
}

// SetVertex writes p into vertex i of a flattened 3×N buffer.
func SetVertex(vertices []float64, i int, p r3.Vec) {
	vertices[3*i], vertices[3*i+1], vertices[3*i+2] = p.X, p.Y, p.Z
}

// NumVertices returns len(vertices)/3 and panics if the buffer is not a
// whole number of vertices.
func NumVertices(vertices []float64) int {
	if len(vertices)%3 != 0 {
		panic(fmt.Sprintf("geometry: vertex buffer of length %d is not 3×N", len(vertices)))
	}
	return len(vertices) / 3
}

// ValidateTriangles panics if any triangle references a vertex outside
// [0, numVertices).
func ValidateTriangles(triangles []Triangle, numVertices int) {
	for f, tri := range triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= numVertices {
				panic(fmt.Sprintf("geometry: triangle %d references vertex %d of %d", f, idx, numVertices))
			}
		}
	}
}
