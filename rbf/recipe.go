package rbf

import (
	"fmt"
	"math"

	"github.com/gogpu/rigsolve/internal/codec"
)

const recipeVersion uint32 = 1

// Recipe is the serializable state of a Solver built from Params.
type Recipe struct {
	Params  Params
	Targets []Target
}

// MarshalBinary encodes the recipe in a versioned little-endian layout. It
// fails if the targets have inconsistent lengths.
func (r Recipe) MarshalBinary() ([]byte, error) {
	dims := 0
	if len(r.Targets) > 0 {
		dims = len(r.Targets[0].Values)
	}
	for i, t := range r.Targets {
		if len(t.Values) != dims {
			return nil, fmt.Errorf("rbf: recipe target %d has %d values, want %d", i, len(t.Values), dims)
		}
	}

	p := r.Params
	buf := make([]byte, 0, 4+4*4+2*8+1+2*4+len(r.Targets)*(1+dims)*8)
	buf = codec.AppendUint32(buf, recipeVersion)
	buf = codec.AppendUint32(buf, uint32(p.Distance))
	buf = codec.AppendUint32(buf, uint32(p.Kernel))
	buf = codec.AppendInt(buf, int(p.TwistAxis))
	buf = codec.AppendUint32(buf, uint32(p.Solver))
	buf = codec.AppendFloat64(buf, p.Radius)
	buf = codec.AppendFloat64(buf, p.WeightThreshold)
	buf = codec.AppendBool(buf, p.Normalize)
	buf = codec.AppendInt(buf, len(r.Targets))
	buf = codec.AppendInt(buf, dims)
	for _, t := range r.Targets {
		buf = codec.AppendFloat64(buf, t.Scale)
		for _, v := range t.Values {
			buf = codec.AppendFloat64(buf, v)
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes data written by MarshalBinary. It fails with
// rigsolve.ErrUnknownVersion or rigsolve.ErrTruncated, or if the decoded
// parameters are out of range, and leaves r untouched on failure.
func (r *Recipe) UnmarshalBinary(data []byte) error {
	rd := codec.NewReader(data)
	rd.Version("rbf recipe", recipeVersion)

	var p Params
	p.Distance = DistanceMethod(enum(rd.Uint32("distance")))
	p.Kernel = KernelType(enum(rd.Uint32("kernel")))
	p.TwistAxis = Axis(rd.Int("twist axis"))
	p.Solver = SolverType(enum(rd.Uint32("solver")))
	p.Radius = rd.Float64("radius")
	p.WeightThreshold = rd.Float64("weight threshold")
	p.Normalize = rd.Bool("normalize")
	n := rd.Count("targets", 8)
	dims := rd.Count("dims", 0)
	if n > 0 {
		rd.Need("target values", n*(1+dims)*8)
	}

	targets := make([]Target, 0, n)
	for range n {
		t := Target{Scale: rd.Float64("scale"), Values: make([]float64, dims)}
		for k := range t.Values {
			t.Values[k] = rd.Float64("value")
		}
		targets = append(targets, t)
	}
	if err := rd.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("rbf: decoding recipe: %w", err)
	}
	*r = Recipe{Params: p, Targets: targets}
	return nil
}

// enum saturates so out-of-range tags stay invalid after narrowing.
func enum(v uint32) uint8 {
	return uint8(min(v, math.MaxUint8))
}

// NewSolverFromRecipe decodes a recipe and builds its solver.
func NewSolverFromRecipe(data []byte) (*Solver, error) {
	var r Recipe
	if err := r.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if r.Params.Distance.quaternion() && len(r.Targets) > 0 && len(r.Targets[0].Values)%4 != 0 {
		return nil, fmt.Errorf("rbf: decoding recipe: %s distance with %d values per target", r.Params.Distance, len(r.Targets[0].Values))
	}
	return NewSolver(r.Params, r.Targets), nil
}
