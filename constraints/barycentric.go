// Package constraints turns geometric correspondences on a mesh into
// differentiable residuals for a rigsolve.Cost.
//
// Every evaluator takes the current vertices as a 3×N rigsolve.DiffDataMatrix
// and returns a DiffData whose Jacobian is a sparse selection matrix composed
// with the vertices' own Jacobian. Vertices without a Jacobian yield constant
// residuals. An evaluator with no active correspondences returns a zero-length
// DiffData, which a Cost silently drops.
package constraints

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/geometry"
)

// BarycentricPointPointConstraintFunction pulls barycentric points of a mesh
// towards fixed target positions.
type BarycentricPointPointConstraintFunction struct{}

// Evaluate returns 3N residuals sqrt(globalWeight)·wᵢ·(bcᵢ(vertices) − targetᵢ)
// for N correspondences. targets is 3×N.
//
// Evaluate panics unless len(bcs) == targets columns == len(weights), or if a
// barycentric index lies outside the mesh. Negative barycentric weights are
// allowed. A non-positive globalWeight disables the constraint.
func (BarycentricPointPointConstraintFunction) Evaluate(
	vertices *rigsolve.DiffDataMatrix,
	bcs []geometry.BarycentricCoordinates,
	targets mat.Matrix,
	weights []float64,
	globalWeight float64,
) *rigsolve.DiffData {
	n := checkCorrespondences("Evaluate", vertices, bcs, targets, weights)
	if n == 0 || !(globalWeight > 0) {
		return emptyResidual()
	}
	sw := math.Sqrt(globalWeight)

	values := make([]float64, 3*n)
	var trips []rigsolve.Triplet
	if vertices.HasJacobian() {
		trips = make([]rigsolve.Triplet, 0, 9*n)
	}
	vs := vertices.Value()
	for i, bc := range bcs {
		s := sw * weights[i]
		p := bc.Evaluate(vs)
		values[3*i] = s * (p.X - targets.At(0, i))
		values[3*i+1] = s * (p.Y - targets.At(1, i))
		values[3*i+2] = s * (p.Z - targets.At(2, i))

		if trips != nil {
			for k, idx := range bc.Indices {
				for d := range 3 {
					trips = append(trips, rigsolve.Triplet{Row: 3*i + d, Col: 3*idx + d, Value: s * bc.Weights[k]})
				}
			}
		}
	}
	return newResidual(vertices, values, trips)
}

// EvaluatePointToPlane returns N residuals sqrt(globalWeight)·wᵢ·nᵢ·(bcᵢ(vertices) − targetᵢ),
// letting points slide within the target tangent planes. normals is 3×N and
// is treated as constant.
func (BarycentricPointPointConstraintFunction) EvaluatePointToPlane(
	vertices *rigsolve.DiffDataMatrix,
	bcs []geometry.BarycentricCoordinates,
	targets, normals mat.Matrix,
	weights []float64,
	globalWeight float64,
) *rigsolve.DiffData {
	n := checkCorrespondences("EvaluatePointToPlane", vertices, bcs, targets, weights)
	if r, c := normals.Dims(); c != n || (n > 0 && r != 3) {
		panic(fmt.Sprintf("constraints: EvaluatePointToPlane: normals are %dx%d, want 3x%d", r, c, n))
	}
	if n == 0 || !(globalWeight > 0) {
		return emptyResidual()
	}
	sw := math.Sqrt(globalWeight)

	values := make([]float64, n)
	var trips []rigsolve.Triplet
	if vertices.HasJacobian() {
		trips = make([]rigsolve.Triplet, 0, 9*n)
	}
	vs := vertices.Value()
	for i, bc := range bcs {
		s := sw * weights[i]
		nrm := r3.Vec{X: normals.At(0, i), Y: normals.At(1, i), Z: normals.At(2, i)}
		tgt := r3.Vec{X: targets.At(0, i), Y: targets.At(1, i), Z: targets.At(2, i)}
		values[i] = s * r3.Dot(nrm, r3.Sub(bc.Evaluate(vs), tgt))

		if trips != nil {
			for k, idx := range bc.Indices {
				trips = appendNormalRow(trips, i, idx, s*bc.Weights[k], nrm)
			}
		}
	}
	return newResidual(vertices, values, trips)
}

func checkCorrespondences(op string, vertices *rigsolve.DiffDataMatrix, bcs []geometry.BarycentricCoordinates, targets mat.Matrix, weights []float64) int {
	checkVertices(op, vertices)
	r, c := targets.Dims()
	if c != len(bcs) || len(weights) != len(bcs) || (len(bcs) > 0 && r != 3) {
		panic(fmt.Sprintf("constraints: %s: %d barycentric coordinates, %dx%d targets and %d weights",
			op, len(bcs), r, c, len(weights)))
	}
	nv := vertices.Cols()
	for _, bc := range bcs {
		bc.Validate(nv)
	}
	return len(bcs)
}

func checkVertices(op string, vertices *rigsolve.DiffDataMatrix) {
	if vertices.Rows() != 3 {
		panic(fmt.Sprintf("constraints: %s: vertices must be 3xN, got %dx%d", op, vertices.Rows(), vertices.Cols()))
	}
}
