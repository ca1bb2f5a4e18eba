package constraints

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/geometry"
	"github.com/gogpu/rigsolve/internal/codec"
)

// DefaultCollisionNeighbours is the number of nearest target vertices whose
// incident triangles are searched for each source vertex.
const DefaultCollisionNeighbours = 8

const collisionDataVersion uint32 = 1

// CollisionData holds the active collisions found by the last
// CalculateCollisions call. It persists across iterations: the calculate
// methods refresh it in place and the caller clears it explicitly.
type CollisionData struct {
	// SourceIDs are the penetrating source vertices.
	SourceIDs []int
	// Targets are the closest points on the target surface.
	Targets []geometry.BarycentricCoordinates
	// Normals are the target surface normals at Targets.
	Normals []r3.Vec
}

// Len returns the number of active collisions.
func (d *CollisionData) Len() int { return len(d.SourceIDs) }

// Clear removes all collisions, keeping the allocated storage.
func (d *CollisionData) Clear() {
	d.SourceIDs = d.SourceIDs[:0]
	d.Targets = d.Targets[:0]
	d.Normals = d.Normals[:0]
}

func (d *CollisionData) add(src int, bc geometry.BarycentricCoordinates, n r3.Vec) {
	d.SourceIDs = append(d.SourceIDs, src)
	d.Targets = append(d.Targets, bc)
	d.Normals = append(d.Normals, n)
}

func (d *CollisionData) check(numSource, numTarget int) {
	if len(d.Targets) != len(d.SourceIDs) || len(d.Normals) != len(d.SourceIDs) {
		panic(fmt.Sprintf("constraints: collision data has %d sources, %d targets and %d normals",
			len(d.SourceIDs), len(d.Targets), len(d.Normals)))
	}
	for i, src := range d.SourceIDs {
		if src < 0 || src >= numSource {
			panic(fmt.Sprintf("constraints: collision source %d outside mesh of %d vertices", src, numSource))
		}
		d.Targets[i].Validate(numTarget)
	}
}

// MarshalBinary encodes the collisions in a versioned little-endian layout.
func (d *CollisionData) MarshalBinary() ([]byte, error) {
	// version, count, then per entry: source, 3 indices, face, 3 weights, normal
	buf := make([]byte, 0, 8+len(d.SourceIDs)*(5*4+6*8))
	buf = codec.AppendUint32(buf, collisionDataVersion)
	buf = codec.AppendInt(buf, len(d.SourceIDs))
	for i, src := range d.SourceIDs {
		bc, n := d.Targets[i], d.Normals[i]
		buf = codec.AppendInt(buf, src)
		for _, idx := range bc.Indices {
			buf = codec.AppendInt(buf, idx)
		}
		buf = codec.AppendInt(buf, bc.Face)
		for _, w := range bc.Weights {
			buf = codec.AppendFloat64(buf, w)
		}
		buf = codec.AppendFloat64(buf, n.X)
		buf = codec.AppendFloat64(buf, n.Y)
		buf = codec.AppendFloat64(buf, n.Z)
	}
	return buf, nil
}

// UnmarshalBinary decodes data written by MarshalBinary. It fails with
// rigsolve.ErrUnknownVersion or rigsolve.ErrTruncated and leaves d
// untouched on failure.
func (d *CollisionData) UnmarshalBinary(data []byte) error {
	r := codec.NewReader(data)
	r.Version("collision data", collisionDataVersion)
	n := r.Count("collision count", 5*4+6*8)

	var out CollisionData
	for range n {
		src := r.Int("source")
		var bc geometry.BarycentricCoordinates
		for k := range 3 {
			bc.Indices[k] = r.Int("index")
		}
		bc.Face = r.Int("face")
		for k := range 3 {
			bc.Weights[k] = r.Float64("weight")
		}
		nrm := r3.Vec{X: r.Float64("normal"), Y: r.Float64("normal"), Z: r.Float64("normal")}
		out.add(src, bc, nrm)
	}
	if err := r.Err(); err != nil {
		return err
	}
	*d = out
	return nil
}

// CollisionConstraints detects source vertices that penetrate a target
// surface and turns them into signed point-to-plane residuals.
//
// Topology is set once per topology change; CalculateCollisions runs per
// iteration and refreshes a caller-owned CollisionData.
type CollisionConstraints struct {
	// Neighbours is the number of nearest target vertices searched per source
	// vertex. Values below 1 use DefaultCollisionNeighbours.
	Neighbours int
	// MaxDistance ignores penetrations deeper than this. Zero means unlimited.
	MaxDistance float64

	sourceIDs  []int
	sourceSize int

	targetTriangles []geometry.Triangle
	targetSize      int
}

// NewCollisionConstraints returns constraints with default search settings
// and no topology.
func NewCollisionConstraints() *CollisionConstraints {
	return &CollisionConstraints{Neighbours: DefaultCollisionNeighbours}
}

// SetSourceTopology selects the source vertices that are tested for
// penetration. len(mask) must equal the source vertex count at evaluation.
func (c *CollisionConstraints) SetSourceTopology(mask []bool) {
	c.sourceIDs = c.sourceIDs[:0]
	for i, on := range mask {
		if on {
			c.sourceIDs = append(c.sourceIDs, i)
		}
	}
	c.sourceSize = len(mask)
}

// SetTargetTopology sets the target surface to the triangles whose three
// vertices are all selected by mask. It panics if a triangle references a
// vertex outside the mask.
func (c *CollisionConstraints) SetTargetTopology(mask []bool, triangles []geometry.Triangle) {
	geometry.ValidateTriangles(triangles, len(mask))
	c.targetTriangles = c.targetTriangles[:0]
	for _, tri := range triangles {
		if mask[tri[0]] && mask[tri[1]] && mask[tri[2]] {
			c.targetTriangles = append(c.targetTriangles, tri)
		}
	}
	c.targetSize = len(mask)
}

// Clear removes the source and target topology.
func (c *CollisionConstraints) Clear() {
	c.sourceIDs = nil
	c.sourceSize = 0
	c.targetTriangles = nil
	c.targetSize = 0
}

// NumSourceVertices returns the number of vertices tested for penetration.
func (c *CollisionConstraints) NumSourceVertices() int { return len(c.sourceIDs) }

// NumTargetTriangles returns the number of triangles of the target surface.
func (c *CollisionConstraints) NumTargetTriangles() int { return len(c.targetTriangles) }

// CalculateCollisions finds self-collisions of one mesh: source vertices
// penetrating the target part of the same mesh. Target normals are computed
// from the target triangles. It returns the number of collisions.
func (c *CollisionConstraints) CalculateCollisions(vertices []float64, data *CollisionData) int {
	c.checkTopology(geometry.NumVertices(vertices), geometry.NumVertices(vertices))
	return c.calculate(vertices, vertices, geometry.VertexNormals(vertices, c.targetTriangles), true, data)
}

// CalculateCollisionsWithNormals is CalculateCollisions with caller-supplied
// per-vertex normals, one per vertex.
func (c *CollisionConstraints) CalculateCollisionsWithNormals(vertices []float64, normals []r3.Vec, data *CollisionData) int {
	nv := geometry.NumVertices(vertices)
	if len(normals) != nv {
		panic(fmt.Sprintf("constraints: %d normals for %d vertices", len(normals), nv))
	}
	c.checkTopology(nv, nv)
	return c.calculate(vertices, vertices, normals, true, data)
}

// CalculateCollisionsTwoMeshes finds source vertices of src penetrating the
// target surface of tgt.
func (c *CollisionConstraints) CalculateCollisionsTwoMeshes(src, tgt []float64, data *CollisionData) int {
	c.checkTopology(geometry.NumVertices(src), geometry.NumVertices(tgt))
	return c.calculate(src, tgt, geometry.VertexNormals(tgt, c.targetTriangles), false, data)
}

// checkTopology panics if a topology was set for a different mesh. Unset
// topology is legal and finds nothing.
func (c *CollisionConstraints) checkTopology(numSource, numTarget int) {
	if c.sourceSize != 0 && c.sourceSize != numSource {
		panic(fmt.Sprintf("constraints: source topology covers %d vertices, mesh has %d", c.sourceSize, numSource))
	}
	if c.targetSize != 0 && c.targetSize != numTarget {
		panic(fmt.Sprintf("constraints: target topology covers %d vertices, mesh has %d", c.targetSize, numTarget))
	}
}

func (c *CollisionConstraints) calculate(src, tgt []float64, normals []r3.Vec, self bool, data *CollisionData) int {
	data.Clear()
	if len(c.sourceIDs) == 0 || len(c.targetTriangles) == 0 {
		return 0
	}

	neighbours := c.Neighbours
	if neighbours < 1 {
		neighbours = DefaultCollisionNeighbours
	}
	query := geometry.NewSurfaceQuery(tgt, c.targetTriangles, neighbours)
	maxDist2 := math.Inf(1)
	if c.MaxDistance > 0 {
		maxDist2 = c.MaxDistance * c.MaxDistance
	}

	for _, id := range c.sourceIDs {
		p := geometry.Vertex(src, id)
		var accept func(int, geometry.Triangle) bool
		if self {
			accept = func(_ int, tri geometry.Triangle) bool { return !slices.Contains(tri[:], id) }
		}
		bc, q, ok := query.ClosestFunc(p, accept)
		if !ok {
			continue
		}
		n := geometry.InterpolateNormal(normals, bc)
		diff := r3.Sub(p, q)
		if r3.Dot(n, diff) >= 0 || r3.Norm2(diff) > maxDist2 {
			continue
		}
		data.add(id, bc, n)
	}

	rigsolve.Logger().Debug("constraints: collisions",
		"sources", len(c.sourceIDs), "triangles", len(c.targetTriangles), "active", data.Len())
	return data.Len()
}

// Evaluate returns one residual per collision of a self-collision data set,
// sqrt(weight)·nᵀ(v[src] − bc(v)), which is negative while penetrating.
// Zero collisions yield a zero-length residual.
func (c *CollisionConstraints) Evaluate(vertices *rigsolve.DiffDataMatrix, data *CollisionData, weight float64) *rigsolve.DiffData {
	checkVertices("Evaluate", vertices)
	data.check(vertices.Cols(), vertices.Cols())
	if data.Len() == 0 || !(weight > 0) {
		return emptyResidual()
	}
	s := math.Sqrt(weight)
	vs := vertices.Value()

	values := make([]float64, data.Len())
	var trips []rigsolve.Triplet
	if vertices.HasJacobian() {
		trips = make([]rigsolve.Triplet, 0, 12*data.Len())
	}
	for i, src := range data.SourceIDs {
		bc, n := data.Targets[i], data.Normals[i]
		values[i] = s * r3.Dot(n, r3.Sub(geometry.Vertex(vs, src), bc.Evaluate(vs)))
		if trips != nil {
			trips = appendNormalRow(trips, i, src, s, n)
			for k, idx := range bc.Indices {
				trips = appendNormalRow(trips, i, idx, -s*bc.Weights[k], n)
			}
		}
	}
	return newResidual(vertices, values, trips)
}

// EvaluateTwoMeshes is Evaluate for collisions between a source and a target
// mesh. The Jacobian is the sum of the contributions through both meshes, so
// when both carry a Jacobian they must share the same variables.
func (c *CollisionConstraints) EvaluateTwoMeshes(src, tgt *rigsolve.DiffDataMatrix, data *CollisionData, weight float64) *rigsolve.DiffData {
	checkVertices("EvaluateTwoMeshes", src)
	checkVertices("EvaluateTwoMeshes", tgt)
	data.check(src.Cols(), tgt.Cols())
	if data.Len() == 0 || !(weight > 0) {
		return emptyResidual()
	}
	s := math.Sqrt(weight)
	sv, tv := src.Value(), tgt.Value()

	values := make([]float64, data.Len())
	var srcTrips, tgtTrips []rigsolve.Triplet
	for i, id := range data.SourceIDs {
		bc, n := data.Targets[i], data.Normals[i]
		values[i] = s * r3.Dot(n, r3.Sub(geometry.Vertex(sv, id), bc.Evaluate(tv)))
		if src.HasJacobian() {
			srcTrips = appendNormalRow(srcTrips, i, id, s, n)
		}
		if tgt.HasJacobian() {
			for k, idx := range bc.Indices {
				tgtTrips = appendNormalRow(tgtTrips, i, idx, -s*bc.Weights[k], n)
			}
		}
	}

	var jac rigsolve.Jacobian
	if src.HasJacobian() {
		jac = src.Jacobian().Premultiply(rigsolve.NewSparseFromTriplets(len(values), src.Size(), srcTrips))
	}
	if tgt.HasJacobian() {
		jac = rigsolve.NewSumJacobian(jac, tgt.Jacobian().Premultiply(rigsolve.NewSparseFromTriplets(len(values), tgt.Size(), tgtTrips)))
	}
	return rigsolve.NewDiffData(values, jac)
}
