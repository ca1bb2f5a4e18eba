package constraints

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/geometry"
)

func emptyResidual() *rigsolve.DiffData {
	return rigsolve.NewDiffData(nil, nil)
}

// newResidual attaches the chain-rule Jacobian S·J(vertices) where S is
// assembled from trips over the 3N vertex coordinates.
func newResidual(vertices *rigsolve.DiffDataMatrix, values []float64, trips []rigsolve.Triplet) *rigsolve.DiffData {
	if !vertices.HasJacobian() {
		return rigsolve.NewDiffData(values, nil)
	}
	s := rigsolve.NewSparseFromTriplets(len(values), vertices.Size(), trips)
	return rigsolve.NewDiffData(values, vertices.Jacobian().Premultiply(s))
}

// appendNormalRow adds scale·nᵀ at the coordinates of vertex idx in row.
func appendNormalRow(trips []rigsolve.Triplet, row, idx int, scale float64, n r3.Vec) []rigsolve.Triplet {
	return append(trips,
		rigsolve.Triplet{Row: row, Col: 3 * idx, Value: scale * n.X},
		rigsolve.Triplet{Row: row, Col: 3*idx + 1, Value: scale * n.Y},
		rigsolve.Triplet{Row: row, Col: 3*idx + 2, Value: scale * n.Z},
	)
}

// surfacePair ties a mesh vertex to a barycentric point on the same mesh.
type surfacePair struct {
	vertex int
	target geometry.BarycentricCoordinates
}

// evaluateSurfacePairs returns 3 residuals per pair, sqrt(weight)·(v − bc(v)).
func evaluateSurfacePairs(vertices *rigsolve.DiffDataMatrix, pairs []surfacePair, weight float64) *rigsolve.DiffData {
	if len(pairs) == 0 || !(weight > 0) {
		return emptyResidual()
	}
	s := math.Sqrt(weight)
	vs := vertices.Value()

	values := make([]float64, 3*len(pairs))
	var trips []rigsolve.Triplet
	if vertices.HasJacobian() {
		trips = make([]rigsolve.Triplet, 0, 12*len(pairs))
	}
	for i, p := range pairs {
		diff := r3.Sub(geometry.Vertex(vs, p.vertex), p.target.Evaluate(vs))
		values[3*i] = s * diff.X
		values[3*i+1] = s * diff.Y
		values[3*i+2] = s * diff.Z

		if trips != nil {
			for d := range 3 {
				trips = append(trips, rigsolve.Triplet{Row: 3*i + d, Col: 3*p.vertex + d, Value: s})
				for k, idx := range p.target.Indices {
					trips = append(trips, rigsolve.Triplet{Row: 3*i + d, Col: 3*idx + d, Value: -s * p.target.Weights[k]})
				}
			}
		}
	}
	return newResidual(vertices, values, trips)
}
