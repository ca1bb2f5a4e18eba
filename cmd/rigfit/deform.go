package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/config"
	"github.com/gogpu/rigsolve/constraints"
	"github.com/gogpu/rigsolve/geometry"
	"github.com/gogpu/rigsolve/internal/fitting"
)

// obstacleHeight is where the synthetic obstacle plane sits below the rest
// mesh.
const obstacleHeight = -0.15

func newDeformCmd(opts *options) *cobra.Command {
	var (
		iterations int
		tolerance  float64
		depth      float64
	)
	cmd := &cobra.Command{
		Use:   "deform",
		Short: "Fit per-vertex offsets to a dent pressed against an obstacle",
		Long: `deform pulls a flat grid towards a Gaussian dent that deepens with every
frame. With collisions enabled an obstacle plane below the grid resists the
dent. Term weights come from the point_point, collision and regularization
sections of the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			rest := gridMesh(opts.size, 1, 0)
			obstacle := gridMesh(opts.size, 1.2, obstacleHeight)

			return opts.runFrames(cmd.Context(), cmd.OutOrStdout(), cfg.Threads,
				func(ctx context.Context, frame int, pool *rigsolve.ThreadPool) (string, error) {
					d := depth * float64(frame+1) / float64(opts.frames)
					p := fitting.Problem{Rest: rest, Landmarks: dentLandmarks(rest, d)}
					if cfg.Collision.Enabled {
						p.Collision = collisionConstraints(cfg.Collision, rest, obstacle)
						p.Obstacle = &obstacle
					}
					res, err := fitting.FitOffsets(ctx, p, fitting.Options{
						Weights:    deformWeights(cfg),
						Iterations: iterations,
						Tolerance:  tolerance,
						Pool:       pool,
					})
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("depth %.3g, %d iterations, energy %.4g, converged %v, lowest z %.4g",
						d, res.Iterations, res.Energy, res.Converged, lowest(res.Vertices)), nil
				})
		},
	}
	f := cmd.Flags()
	f.IntVar(&iterations, "iterations", 20, "maximum Gauss-Newton iterations")
	f.Float64Var(&tolerance, "tolerance", 1e-8, "stop once the step norm falls below this")
	f.Float64Var(&depth, "depth", 0.4, "dent depth of the last frame")
	return cmd
}

func deformWeights(cfg *config.Config) fitting.Weights {
	w := fitting.Weights{
		PointPoint:     cfg.PointPoint.Weight,
		Average:        cfg.PointPoint.Average,
		Regularization: cfg.Regularization.Weight,
	}
	if cfg.Collision.Enabled {
		w.Collision = cfg.Collision.Weight
	}
	if cfg.LipClosure.Enabled {
		w.LipClosure = cfg.LipClosure.Weight
		w.ContactThreshold = cfg.LipClosure.ContactThreshold
	}
	return w
}

func collisionConstraints(cfg config.Collision, src, tgt fitting.Mesh) *constraints.CollisionConstraints {
	c := constraints.NewCollisionConstraints()
	c.Neighbours = cfg.Neighbours
	c.MaxDistance = cfg.MaxDistance
	c.SetSourceTopology(fullMask(geometry.NumVertices(src.Vertices)))
	c.SetTargetTopology(fullMask(geometry.NumVertices(tgt.Vertices)), tgt.Triangles)
	return c
}

func fullMask(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func lowest(vertices []float64) float64 {
	z := math.Inf(1)
	for i := 2; i < len(vertices); i += 3 {
		z = min(z, vertices[i])
	}
	return z
}
