package geometry

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// vertexPoint is a kd-tree entry carrying the mesh vertex id.
type vertexPoint struct {
	pos r3.Vec
	id  int
}

func (p vertexPoint) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.pos.X
	case 1:
		return p.pos.Y
	default:
		return p.pos.Z
	}
}

// Compare returns the signed distance of p from the plane through c
// perpendicular to dimension d.
func (p vertexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(vertexPoint).coord(d)
}

func (p vertexPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (p vertexPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.pos, c.(vertexPoint).pos))
}

type vertexPoints []vertexPoint

func (p vertexPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p vertexPoints) Len() int                      { return len(p) }
func (p vertexPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p vertexPoints) Pivot(d kdtree.Dim) int {
	plane := vertexPlane{vertexPoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// vertexPlane sorts vertexPoints along one dimension.
type vertexPlane struct {
	vertexPoints
	kdtree.Dim
}

func (p vertexPlane) Less(i, j int) bool {
	return p.vertexPoints[i].coord(p.Dim) < p.vertexPoints[j].coord(p.Dim)
}
func (p vertexPlane) Swap(i, j int) {
	p.vertexPoints[i], p.vertexPoints[j] = p.vertexPoints[j], p.vertexPoints[i]
}
func (p vertexPlane) Slice(start, end int) kdtree.SortSlicer {
	return vertexPlane{vertexPoints: p.vertexPoints[start:end], Dim: p.Dim}
}

// VertexIndex answers nearest-vertex queries over a subset of mesh vertices.
type VertexIndex struct {
	tree *kdtree.Tree
	n    int
}

// NewVertexIndex indexes the vertices listed in ids. A nil ids indexes every
// vertex of the buffer.
func NewVertexIndex(vertices []float64, ids []int) *VertexIndex {
	nv := NumVertices(vertices)
	if ids == nil {
		ids = make([]int, nv)
		for i := range ids {
			ids[i] = i
		}
	}
	pts := make(vertexPoints, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= nv {
			panic("geometry: vertex index id out of range")
		}
		pts = append(pts, vertexPoint{pos: Vertex(vertices, id), id: id})
	}
	idx := &VertexIndex{n: len(pts)}
	if len(pts) > 0 {
		idx.tree = kdtree.New(pts, false)
	}
	return idx
}

// Len returns the number of indexed vertices.
func (x *VertexIndex) Len() int { return x.n }

// Nearest returns up to k vertex ids ordered by increasing distance to q.
func (x *VertexIndex) Nearest(q r3.Vec, k int) []int {
	if x.tree == nil || k <= 0 {
		return nil
	}
	keep := kdtree.NewNKeeper(k)
	x.tree.NearestSet(keep, vertexPoint{pos: q})

	found := make([]kdtree.ComparableDist, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable != nil {
			found = append(found, c)
		}
	}
	slices.SortFunc(found, func(a, b kdtree.ComparableDist) int {
		switch {
		case a.Dist < b.Dist:
			return -1
		case a.Dist > b.Dist:
			return 1
		}
		return a.Comparable.(vertexPoint).id - b.Comparable.(vertexPoint).id
	})

	ids := make([]int, len(found))
	for i, c := range found {
		ids[i] = c.Comparable.(vertexPoint).id
	}
	return ids
}

// SurfaceQuery finds closest points on a triangle set. Candidate triangles are
// those incident to the k vertices nearest to the query.
type SurfaceQuery struct {
	triangles []Triangle
	incident  map[int][]int
	index     *VertexIndex
	vertices  []float64
	k         int
}

// NewSurfaceQuery indexes triangles over the current vertex positions.
// neighbours is the number of nearest vertices whose incident triangles are
// tested; values below 1 are raised to 1.
func NewSurfaceQuery(vertices []float64, triangles []Triangle, neighbours int) *SurfaceQuery {
	ValidateTriangles(triangles, NumVertices(vertices))

	incident := make(map[int][]int)
	for f, tri := range triangles {
		for _, v := range tri {
			incident[v] = append(incident[v], f)
		}
	}
	ids := make([]int, 0, len(incident))
	for v := range incident {
		ids = append(ids, v)
	}
	slices.Sort(ids)

	return &SurfaceQuery{
		triangles: triangles,
		incident:  incident,
		index:     NewVertexIndex(vertices, ids),
		vertices:  vertices,
		k:         max(neighbours, 1),
	}
}

// Closest returns the closest surface point to p, its barycentric
// coordinates and whether any triangle was found.
func (s *SurfaceQuery) Closest(p r3.Vec) (BarycentricCoordinates, r3.Vec, bool) {
	return s.ClosestFunc(p, nil)
}

// ClosestFunc is like Closest but only considers faces for which accept
// returns true. A nil accept considers every face.
func (s *SurfaceQuery) ClosestFunc(p r3.Vec, accept func(face int, tri Triangle) bool) (BarycentricCoordinates, r3.Vec, bool) {
	best := math.Inf(1)
	var bestBC BarycentricCoordinates
	var bestPt r3.Vec
	found := false

	tested := make(map[int]struct{})
	for _, v := range s.index.Nearest(p, s.k) {
		for _, f := range s.incident[v] {
			if _, ok := tested[f]; ok {
				continue
			}
			tested[f] = struct{}{}

			tri := s.triangles[f]
			if accept != nil && !accept(f, tri) {
				continue
			}
			a, b, c := Vertex(s.vertices, tri[0]), Vertex(s.vertices, tri[1]), Vertex(s.vertices, tri[2])
			q, w := ClosestPointOnTriangle(p, a, b, c)
			if d := r3.Norm2(r3.Sub(p, q)); d < best {
				best = d
				bestPt = q
				bestBC = NewBarycentricCoordinates(tri, w, f)
				found = true
			}
		}
	}
	return bestBC, bestPt, found
}
