package geometry

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecNear(t *testing.T, want, got r3.Vec, eps float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Z, got.Z, eps, "z")
}

func TestBarycentricEvaluate(t *testing.T) {
	vertices := []float64{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	}
	bc := NewBarycentricCoordinates(Triangle{0, 1, 2}, [3]float64{0.2, 0.3, 0.5}, 7)
	vecNear(t, r3.Vec{X: 0.3, Y: 0.5}, bc.Evaluate(vertices), 1e-15)

	// Negative weights extrapolate outside the triangle.
	out := NewBarycentricCoordinates(Triangle{0, 1, 2}, [3]float64{1.5, -0.5, 0}, 7)
	vecNear(t, r3.Vec{X: -0.5}, out.Evaluate(vertices), 1e-15)
}

func TestBarycentricValidate(t *testing.T) {
	bc := NewBarycentricCoordinates(Triangle{0, 1, 5}, [3]float64{1, 0, 0}, 0)
	require.Panics(t, func() { bc.Validate(5) })
	require.NotPanics(t, func() { bc.Validate(6) })
}

func TestNumVertices(t *testing.T) {
	assert.Equal(t, 2, NumVertices(make([]float64, 6)))
	require.Panics(t, func() { NumVertices(make([]float64, 5)) })
}

func TestClosestPointOnTriangle(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	c := r3.Vec{Y: 1}

	tests := []struct {
		name    string
		p       r3.Vec
		want    r3.Vec
		weights [3]float64
	}{
		{"interior above", r3.Vec{X: 0.25, Y: 0.25, Z: 2}, r3.Vec{X: 0.25, Y: 0.25}, [3]float64{0.5, 0.25, 0.25}},
		{"vertex a region", r3.Vec{X: -1, Y: -1}, a, [3]float64{1, 0, 0}},
		{"vertex b region", r3.Vec{X: 2, Y: -0.5}, b, [3]float64{0, 1, 0}},
		{"vertex c region", r3.Vec{X: -0.5, Y: 2}, c, [3]float64{0, 0, 1}},
		{"edge ab", r3.Vec{X: 0.5, Y: -1}, r3.Vec{X: 0.5}, [3]float64{0.5, 0.5, 0}},
		{"edge ac", r3.Vec{X: -1, Y: 0.5}, r3.Vec{Y: 0.5}, [3]float64{0.5, 0, 0.5}},
		{"edge bc", r3.Vec{X: 1, Y: 1}, r3.Vec{X: 0.5, Y: 0.5}, [3]float64{0, 0.5, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, w := ClosestPointOnTriangle(tt.p, a, b, c)
			vecNear(t, tt.want, got, 1e-12)
			for k := range 3 {
				assert.InDelta(t, tt.weights[k], w[k], 1e-12, "weight %d", k)
			}
		})
	}
}

func TestFaceAndVertexNormals(t *testing.T) {
	// Two triangles of a unit square in the z=0 plane, counter-clockwise.
	vertices := []float64{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
		5, 5, 5, // unreferenced
	}
	tris := []Triangle{{0, 1, 2}, {0, 2, 3}}

	vecNear(t, r3.Vec{Z: 1}, FaceNormal(Vertex(vertices, 0), Vertex(vertices, 1), Vertex(vertices, 2)), 1e-15)
	assert.Equal(t, r3.Vec{}, FaceNormal(r3.Vec{}, r3.Vec{}, r3.Vec{X: 1}))

	normals := VertexNormals(vertices, tris)
	require.Len(t, normals, 5)
	for i := range 4 {
		vecNear(t, r3.Vec{Z: 1}, normals[i], 1e-15)
	}
	assert.Equal(t, r3.Vec{}, normals[4])

	bc := NewBarycentricCoordinates(tris[0], [3]float64{0.2, 0.3, 0.5}, 0)
	vecNear(t, r3.Vec{Z: 1}, InterpolateNormal(normals, bc), 1e-15)

	require.Panics(t, func() { VertexNormals(vertices, []Triangle{{0, 1, 9}}) })
}

func TestVertexIndex_Nearest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const n = 300
	vertices := make([]float64, 3*n)
	for i := range vertices {
		vertices[i] = rng.Float64()
	}
	// Index only the even vertices.
	var ids []int
	for i := 0; i < n; i += 2 {
		ids = append(ids, i)
	}
	idx := NewVertexIndex(vertices, ids)
	assert.Equal(t, len(ids), idx.Len())

	for range 20 {
		q := r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
		got := idx.Nearest(q, 4)
		require.Len(t, got, 4)

		// Brute force reference.
		best := math.Inf(1)
		bestID := -1
		for _, id := range ids {
			if d := r3.Norm2(r3.Sub(q, Vertex(vertices, id))); d < best {
				best, bestID = d, id
			}
		}
		assert.Equal(t, bestID, got[0])
		for i := 1; i < len(got); i++ {
			d0 := r3.Norm2(r3.Sub(q, Vertex(vertices, got[i-1])))
			d1 := r3.Norm2(r3.Sub(q, Vertex(vertices, got[i])))
			assert.LessOrEqual(t, d0, d1, "results must be sorted by distance")
			assert.Zero(t, got[i]%2, "odd vertex %d was not indexed", got[i])
		}
	}
}

func TestVertexIndex_Empty(t *testing.T) {
	idx := NewVertexIndex(make([]float64, 9), []int{})
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Nearest(r3.Vec{}, 3))
}

func TestSurfaceQuery_Closest(t *testing.T) {
	// A 4x4 grid of quads in the z=0 plane.
	const side = 5
	vertices := make([]float64, 0, 3*side*side)
	for y := range side {
		for x := range side {
			vertices = append(vertices, float64(x), float64(y), 0)
		}
	}
	var tris []Triangle
	for y := range side - 1 {
		for x := range side - 1 {
			v := y*side + x
			tris = append(tris, Triangle{v, v + 1, v + side + 1}, Triangle{v, v + side + 1, v + side})
		}
	}

	q := NewSurfaceQuery(vertices, tris, 4)
	p := r3.Vec{X: 2.3, Y: 1.6, Z: 0.7}
	bc, pt, ok := q.Closest(p)
	require.True(t, ok)
	vecNear(t, r3.Vec{X: 2.3, Y: 1.6}, pt, 1e-12)
	vecNear(t, pt, bc.Evaluate(vertices), 1e-12)
	assert.InDelta(t, 1.0, bc.Weights[0]+bc.Weights[1]+bc.Weights[2], 1e-12)
	assert.Equal(t, tris[bc.Face], Triangle(bc.Indices))

	empty := NewSurfaceQuery(vertices, nil, 4)
	_, _, ok = empty.Closest(p)
	assert.False(t, ok)
}
