// Package fitting drives the constraint evaluators and solvers through
// complete fits: a Gauss-Newton loop over per-vertex offsets and an
// iterative closest-point rigid alignment.
package fitting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/constraints"
	"github.com/gogpu/rigsolve/geometry"
)

// ErrNotPositiveDefinite is returned when the normal equations of a fit
// cannot be factorized, typically because nothing constrains some vertex
// and the regularization weight is zero.
var ErrNotPositiveDefinite = errors.New("fitting: normal equations not positive definite")

// Mesh is a 3×N column-major vertex buffer with its triangles.
type Mesh struct {
	Vertices  []float64
	Triangles []geometry.Triangle
}

// Landmarks pull barycentric surface points towards fixed targets.
type Landmarks struct {
	Points  []geometry.BarycentricCoordinates
	Targets mat.Matrix // 3×len(Points)
	Weights []float64
}

// Lips holds lip closure topology and the current landmark contours.
type Lips struct {
	Constraints  *constraints.LipClosureConstraints
	Upper, Lower mat.Matrix
}

// Problem is a deformation fit of Rest.
type Problem struct {
	Rest      Mesh
	Landmarks Landmarks

	// Collision is optional. With an Obstacle the rest mesh collides against
	// it; without one the mesh collides with itself.
	Collision *constraints.CollisionConstraints
	Obstacle  *Mesh

	Lips *Lips
}

// Weights are the term weights of a deformation fit. A zero weight disables
// its term.
type Weights struct {
	PointPoint       float64
	Average          bool
	Collision        float64
	LipClosure       float64
	ContactThreshold float64
	Regularization   float64
}

// Options control the outer loop.
type Options struct {
	Weights    Weights
	Iterations int
	// Tolerance stops the loop once the step norm falls below it.
	Tolerance float64
	Pool      *rigsolve.ThreadPool
}

// Result is the outcome of a fit.
type Result struct {
	Vertices   []float64
	Iterations int
	// Energy is the cost at the last linearization.
	Energy    float64
	Converged bool
}

// FitOffsets minimizes the weighted cost over per-vertex offsets of
// p.Rest with Gauss-Newton steps. Collisions and lip contact are recomputed
// at every iteration. ctx is checked between iterations.
func FitOffsets(ctx context.Context, p Problem, opts Options) (Result, error) {
	n := len(p.Rest.Vertices)
	res := Result{Vertices: slices.Clone(p.Rest.Vertices)}
	if geometry.NumVertices(p.Rest.Vertices) == 0 {
		res.Converged = true
		return res, nil
	}

	offsets := make([]float64, n)
	identity := rigsolve.NewIdentityJacobian(n)
	var collisions constraints.CollisionData

	for res.Iterations < opts.Iterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		verts := rigsolve.NewDiffDataMatrix(3, n/3, slices.Clone(res.Vertices), identity)
		cost := buildCost(p, opts.Weights, verts, offsets, identity, &collisions)
		res.Energy = cost.Energy()
		cost.LogBreakdown(ctx, slog.LevelDebug)
		if cost.NumTerms() == 0 {
			res.Converged = true
			break
		}

		step, err := gaussNewtonStep(cost, n, opts.Pool)
		if err != nil {
			return res, fmt.Errorf("fitting: iteration %d: %w", res.Iterations, err)
		}
		floats.Add(offsets, step)
		floats.AddTo(res.Vertices, p.Rest.Vertices, offsets)
		res.Iterations++

		norm := floats.Norm(step, 2)
		rigsolve.Logger().Debug("fitting: offsets step", "iteration", res.Iterations, "energy", res.Energy, "step", norm)
		if norm < opts.Tolerance {
			res.Converged = true
			break
		}
	}
	rigsolve.Logger().Info("fitting: offsets done",
		"iterations", res.Iterations, "energy", res.Energy, "converged", res.Converged)
	return res, nil
}

func buildCost(p Problem, w Weights, verts *rigsolve.DiffDataMatrix, offsets []float64, identity rigsolve.Jacobian, collisions *constraints.CollisionData) *rigsolve.Cost {
	cost := rigsolve.NewCost()
	cur := verts.Value()

	if w.PointPoint > 0 && len(p.Landmarks.Points) > 0 {
		lm := p.Landmarks
		r := constraints.BarycentricPointPointConstraintFunction{}.Evaluate(verts, lm.Points, lm.Targets, lm.Weights, 1)
		cost.Add(r, w.PointPoint, "point_point", w.Average)
	}

	if p.Collision != nil && w.Collision > 0 {
		if p.Obstacle != nil {
			p.Collision.CalculateCollisionsTwoMeshes(cur, p.Obstacle.Vertices, collisions)
			obstacle := rigsolve.NewDiffDataMatrix(3, len(p.Obstacle.Vertices)/3, p.Obstacle.Vertices, nil)
			cost.Add(p.Collision.EvaluateTwoMeshes(verts, obstacle, collisions, 1), w.Collision, "collision", false)
		} else {
			p.Collision.CalculateCollisions(cur, collisions)
			cost.Add(p.Collision.Evaluate(verts, collisions, 1), w.Collision, "collision", false)
		}
	}

	if p.Lips != nil && w.LipClosure > 0 {
		p.Lips.Constraints.CalculateLipClosureData(cur, p.Lips.Upper, p.Lips.Lower, w.ContactThreshold)
		cost.Add(p.Lips.Constraints.Evaluate(verts, 1), w.LipClosure, "lip_closure", false)
	}

	if w.Regularization > 0 {
		reg := rigsolve.NewDiffData(slices.Clone(offsets), identity)
		cost.Add(reg, w.Regularization, "regularization", false)
	}
	return cost
}

// gaussNewtonStep solves JᵀJ·dx = −Jᵀr.
func gaussNewtonStep(cost *rigsolve.Cost, n int, pool *rigsolve.ThreadPool) ([]float64, error) {
	jtj := mat.NewDense(n, n, nil)
	cost.AddDenseJtJLower(jtj, 1, pool)
	rhs := make([]float64, n)
	cost.AddJtResidual(rhs, -1)

	var chol mat.Cholesky
	if !chol.Factorize(rigsolve.LowerToSymmetric(jtj)) {
		return nil, ErrNotPositiveDefinite
	}
	dx := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(dx, mat.NewVecDense(n, rhs)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	return dx.RawVector().Data, nil
}
