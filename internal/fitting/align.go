package fitting

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/geometry"
	"github.com/gogpu/rigsolve/rigid"
)

// AlignOptions control AlignRigid.
type AlignOptions struct {
	Free       [6]bool
	Iterations int
	// Tolerance stops the loop once the transform moves less than it.
	Tolerance float64
	// Neighbours is the closest-point candidate count per query.
	Neighbours int
	// Initial is used as the starting transform when Landmarks is empty.
	Initial rigid.Transform
	// Landmarks are optional source/target point pairs (3×K each) used to
	// seed the alignment with a closed-form point-to-point solve.
	SourceLandmarks, TargetLandmarks mat.Matrix
}

// AlignResult is the outcome of AlignRigid.
type AlignResult struct {
	Transform  rigid.Transform
	Iterations int
	// RMS is the root mean square point-to-plane distance at the last
	// correspondence update.
	RMS       float64
	Converged bool
}

// AlignRigid aligns the src vertices to the target surface by iterating
// closest-point correspondences and point-to-plane rigid steps.
func AlignRigid(ctx context.Context, src []float64, target Mesh, opts AlignOptions) (AlignResult, error) {
	n := geometry.NumVertices(src)
	res := AlignResult{Transform: opts.Initial}
	if opts.SourceLandmarks != nil && opts.TargetLandmarks != nil {
		res.Transform = rigid.SolvePointToPoint(opts.SourceLandmarks, opts.TargetLandmarks, nil)
	}
	if n == 0 || len(target.Triangles) == 0 {
		return res, nil
	}

	query := geometry.NewSurfaceQuery(target.Vertices, target.Triangles, opts.Neighbours)
	normals := geometry.VertexNormals(target.Vertices, target.Triangles)

	srcM := mat.NewDense(3, n, nil)
	for i := range n {
		p := geometry.Vertex(src, i)
		srcM.SetCol(i, []float64{p.X, p.Y, p.Z})
	}
	tgtM := mat.NewDense(3, n, nil)
	nrmM := mat.NewDense(3, n, nil)
	weights := make([]float64, n)

	for res.Iterations < opts.Iterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var sum float64
		var count int
		for i := range n {
			p := res.Transform.Apply(geometry.Vertex(src, i))
			bc, q, ok := query.Closest(p)
			if !ok {
				weights[i] = 0
				continue
			}
			nrm := geometry.InterpolateNormal(normals, bc)
			tgtM.SetCol(i, []float64{q.X, q.Y, q.Z})
			nrmM.SetCol(i, []float64{nrm.X, nrm.Y, nrm.Z})
			weights[i] = 1
			d := r3.Dot(nrm, r3.Sub(p, q))
			sum += d * d
			count++
		}
		if count == 0 {
			break
		}
		res.RMS = math.Sqrt(sum / float64(count))

		next := rigid.SolveMasked(srcM, tgtM, nrmM, weights, res.Transform, opts.Free, false)
		moved := transformDelta(res.Transform, next)
		res.Transform = next
		res.Iterations++
		rigsolve.Logger().Debug("fitting: rigid step", "iteration", res.Iterations, "rms", res.RMS, "moved", moved)
		if moved < opts.Tolerance {
			res.Converged = true
			break
		}
	}
	rigsolve.Logger().Info("fitting: rigid alignment done",
		"iterations", res.Iterations, "rms", res.RMS, "converged", res.Converged)
	return res, nil
}

// transformDelta is the largest displacement between a and b of the
// translation or of a rotated basis vector.
func transformDelta(a, b rigid.Transform) float64 {
	d := r3.Norm(r3.Sub(a.T, b.T))
	for _, e := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		d = max(d, r3.Norm(r3.Sub(a.Rotate(e), b.Rotate(e))))
	}
	return d
}
