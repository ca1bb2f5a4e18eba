package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rigsolve/rbf"
	"github.com/gogpu/rigsolve/rigid"
)

const fullDoc = `
threads: 4
rigid:
  free: [tx, ty, tz]
  iterations: 5
  neighbours: 12
point_point:
  weight: 2.5
  average: true
collision:
  enabled: false
  weight: 0.5
  neighbours: 4
  max_distance: 0.1
lip_closure:
  enabled: true
  weight: 3
  contact_threshold: 0.02
rbf:
  distance: swing
  kernel: Cubic
  twist_axis: y
  radius: 0.7
  weight_threshold: 0.05
  normalize: false
  solver: interpolative
regularization:
  weight: 0.2
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullDoc))
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)

	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, rigid.TranslationOnly, cfg.Rigid.FreeMask())
	assert.Equal(t, 5, cfg.Rigid.Iterations)
	assert.Equal(t, 12, cfg.Rigid.Neighbours)
	assert.Equal(t, PointPoint{Weight: 2.5, Average: true}, cfg.PointPoint)
	assert.Equal(t, Collision{Weight: 0.5, Neighbours: 4, MaxDistance: 0.1}, cfg.Collision)
	assert.Equal(t, LipClosure{Enabled: true, Weight: 3, ContactThreshold: 0.02}, cfg.LipClosure)
	assert.Equal(t, 0.2, cfg.Regularization.Weight)

	p, err := cfg.RBF.Params()
	require.NoError(t, err)
	assert.Equal(t, rbf.Params{
		Distance:        rbf.DistanceSwingAngle,
		Kernel:          rbf.KernelCubic,
		TwistAxis:       rbf.AxisY,
		Radius:          0.7,
		WeightThreshold: 0.05,
		Normalize:       false,
		Solver:          rbf.Interpolative,
	}, p)
}

func TestParse_Warnings(t *testing.T) {
	doc := `
threads: 2
rigid:
  iterations: 3
  damping: 0.5
extra: true
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	joined := strings.Join(cfg.Warnings, "\n")
	assert.Contains(t, joined, "unknown key rigid.damping")
	assert.Contains(t, joined, "unknown key extra")
	assert.Contains(t, joined, "missing key rigid.free")
	assert.Contains(t, joined, "missing key collision")
	assert.Contains(t, joined, "missing key rbf")
	assert.NotContains(t, joined, "missing key threads")

	// Missing keys keep their defaults.
	def := Default()
	assert.Equal(t, 3, cfg.Rigid.Iterations)
	assert.Equal(t, def.Rigid.Free, cfg.Rigid.Free)
	assert.Equal(t, def.Collision, cfg.Collision)
	assert.Equal(t, def.RBF, cfg.RBF)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	cfg.Warnings = nil
	assert.Equal(t, Default(), cfg)
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
	p, err := Default().RBF.Params()
	require.NoError(t, err)
	assert.Equal(t, rbf.DefaultParams(), p)
	assert.Equal(t, rigid.AllFree, Default().Rigid.FreeMask())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"negative weight", "point_point:\n  weight: -1\n", "point_point.weight"},
		{"zero radius", "rbf:\n  radius: 0\n", "rbf.radius"},
		{"threshold above one", "rbf:\n  weight_threshold: 2\n", "weight_threshold"},
		{"bad dof", "rigid:\n  free: [rx, spin]\n", "free"},
		{"zero iterations", "rigid:\n  iterations: 0\n", "iterations"},
		{"zero rigid neighbours", "rigid:\n  neighbours: 0\n", "rigid.neighbours"},
		{"unknown kernel", "rbf:\n  kernel: sinc\n", "unknown kernel"},
		{"unknown axis", "rbf:\n  twist_axis: w\n", "unknown twist axis"},
		{"wrong type", "threads: many\n", "decoding"},
		{"not a mapping", "- 1\n- 2\n", "mapping"},
		{"bad yaml", "rigid: [\n", "parsing yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Threads)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("threads: -3\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "bad.yaml")
}
