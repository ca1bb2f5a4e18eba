package main

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve/constraints"
	"github.com/gogpu/rigsolve/geometry"
	"github.com/gogpu/rigsolve/internal/fitting"
)

// gridMesh returns a side×side grid spanning [-half, half]² at height z with
// upward-facing triangles.
func gridMesh(side int, half, z float64) fitting.Mesh {
	var m fitting.Mesh
	step := 2 * half / float64(side-1)
	for y := range side {
		for x := range side {
			m.Vertices = append(m.Vertices, -half+step*float64(x), -half+step*float64(y), z)
		}
	}
	for y := range side - 1 {
		for x := range side - 1 {
			v := y*side + x
			m.Triangles = append(m.Triangles,
				geometry.Triangle{v, v + 1, v + side + 1},
				geometry.Triangle{v, v + side + 1, v + side})
		}
	}
	return m
}

// dentLandmarks pins every vertex of m to a Gaussian dent of the given depth.
func dentLandmarks(m fitting.Mesh, depth float64) fitting.Landmarks {
	n := geometry.NumVertices(m.Vertices)
	targets := mat.NewDense(3, n, nil)
	lm := fitting.Landmarks{Targets: targets, Weights: make([]float64, n)}
	for i := range n {
		p := geometry.Vertex(m.Vertices, i)
		dz := -depth * math.Exp(-4*(p.X*p.X+p.Y*p.Y))
		lm.Points = append(lm.Points, geometry.NewBarycentricCoordinates(geometry.Triangle{i, i, i}, [3]float64{1, 0, 0}, -1))
		targets.SetCol(i, []float64{p.X, p.Y, p.Z + dz})
		lm.Weights[i] = 1
	}
	return lm
}

// quaternion returns (x, y, z, w) of the rotation by |omega| about omega.
func quaternion(omega r3.Vec) []float64 {
	angle := r3.Norm(omega)
	if angle == 0 {
		return []float64{0, 0, 0, 1}
	}
	axis := r3.Scale(math.Sin(angle/2)/angle, omega)
	return []float64{axis.X, axis.Y, axis.Z, math.Cos(angle / 2)}
}

// jointPoses samples a two-joint pose space: the first joint swings about x,
// the second twists about z.
func jointPoses(n int) [][]float64 {
	poses := make([][]float64, 0, n)
	for i := range n {
		t := float64(i) / float64(max(n-1, 1))
		a := quaternion(r3.Vec{X: 1.2 * (t - 0.5)})
		b := quaternion(r3.Vec{Z: 0.8 * math.Sin(3*t)})
		poses = append(poses, append(a, b...))
	}
	return poses
}

// lipStrips stacks two side×side strips into one mesh: the lower lip at z=0
// and the upper lip gap above it. It returns the mesh and the lip topology.
func lipStrips(side int, gap float64) (fitting.Mesh, *constraints.LipClosureConstraints) {
	lower := gridMesh(side, 0.5, 0)
	upper := gridMesh(side, 0.5, gap)
	n := geometry.NumVertices(lower.Vertices)

	m := fitting.Mesh{Vertices: append(slices.Clone(lower.Vertices), upper.Vertices...)}
	lowerIDs := make([]int, n)
	upperIDs := make([]int, n)
	for i := range n {
		lowerIDs[i] = i
		upperIDs[i] = n + i
	}
	upperTris := make([]geometry.Triangle, len(upper.Triangles))
	for i, tri := range upper.Triangles {
		upperTris[i] = geometry.Triangle{tri[0] + n, tri[1] + n, tri[2] + n}
	}
	m.Triangles = append(slices.Clone(lower.Triangles), upperTris...)

	lips := constraints.NewLipClosureConstraints()
	lips.SetTopology(upperIDs, lowerIDs, lower.Triangles, upperTris)
	return m, lips
}

// lipContour samples k landmarks along the front edge of a lip at height z.
func lipContour(k int, z float64) *mat.Dense {
	c := mat.NewDense(3, k, nil)
	for i := range k {
		c.SetCol(i, []float64{-0.5 + float64(i)/float64(max(k-1, 1)), -0.5, z})
	}
	return c
}
