package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/config"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { rigsolve.SetLogger(nil) })

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAlign(t *testing.T) {
	out, logs, err := run(t, "align", "--frames", "3", "--size", "5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, fmt.Sprintf("frame %d:", i)), line)
		assert.Contains(t, line, "converged true")
	}
	assert.Contains(t, logs, "rigid alignment done")
}

func TestDeform(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
threads: 2
point_point:
  weight: 1
collision:
  enabled: true
  weight: 20
  neighbours: 4
regularization:
  weight: 0.001
`), 0o644))

	out, logs, err := run(t, "deform", "--config", cfg, "--frames", "2", "--size", "4", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "frame 0:")
	assert.Contains(t, out, "frame 1:")
	assert.Contains(t, logs, "missing key rigid")
	assert.Contains(t, logs, "level=DEBUG")

	// The obstacle keeps the deepest dent close to its plane.
	line := strings.Split(strings.TrimSpace(out), "\n")[1]
	assert.Contains(t, line, "depth 0.4")
	assert.NotContains(t, line, "lowest z -0.3")
}

func TestLips(t *testing.T) {
	out, _, err := run(t, "lips", "--frames", "2", "--size", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	// Frame 0 contours are 0.1 apart, beyond the default contact threshold.
	assert.Contains(t, lines[0], "contour gap 0.1, closed false, 0 pairs, mouth gap 0.2")
	// Frame 1 contours touch, so every lip vertex pairs with the other lip.
	assert.Contains(t, lines[1], "contour gap 0, closed true, 18 pairs")
	assert.NotContains(t, lines[1], "mouth gap 0.2")
}

func TestLips_Disabled(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("lip_closure:\n  enabled: false\n"), 0o644))

	out, _, err := run(t, "lips", "--config", cfg, "--size", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "closed false, 0 pairs, mouth gap 0.2")
}

func TestDeformWeights(t *testing.T) {
	cfg := config.Default()
	cfg.LipClosure = config.LipClosure{Enabled: true, Weight: 3, ContactThreshold: 0.02}
	cfg.Collision.Enabled = false

	w := deformWeights(cfg)
	assert.Equal(t, 3.0, w.LipClosure)
	assert.Equal(t, 0.02, w.ContactThreshold)
	assert.Zero(t, w.Collision)
	assert.Equal(t, cfg.PointPoint.Weight, w.PointPoint)
	assert.Equal(t, cfg.Regularization.Weight, w.Regularization)

	cfg.LipClosure.Enabled = false
	w = deformWeights(cfg)
	assert.Zero(t, w.LipClosure)
	assert.Zero(t, w.ContactThreshold)
}

func TestAlign_RigidNeighbours(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("rigid:\n  neighbours: 2\ncollision:\n  neighbours: 1\n"), 0o644))

	out, _, err := run(t, "align", "--config", cfg, "--size", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "converged true")
}

func TestBlend_RecipeRoundTrip(t *testing.T) {
	recipe := filepath.Join(t.TempDir(), "poses.rbf")

	out, _, err := run(t, "blend", "--frames", "2", "--targets", "3", "--save-recipe", recipe)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "weights ["))

	again, _, err := run(t, "blend", "--frames", "2", "--recipe", recipe)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestErrors(t *testing.T) {
	_, _, err := run(t, "align", "--frames", "0")
	assert.ErrorContains(t, err, "--frames")

	_, _, err = run(t, "deform", "--size", "1")
	assert.ErrorContains(t, err, "--size")

	_, _, err = run(t, "align", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.rbf")
	require.NoError(t, os.WriteFile(bad, []byte{9, 0, 0, 0}, 0o644))
	_, _, err = run(t, "blend", "--recipe", bad)
	assert.ErrorIs(t, err, rigsolve.ErrUnknownVersion)

	_, _, err = run(t, "blend", "--targets", "1000")
	assert.Error(t, err)
}
