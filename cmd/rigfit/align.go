package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/internal/fitting"
	"github.com/gogpu/rigsolve/rigid"
)

func newAlignCmd(opts *options) *cobra.Command {
	var tolerance float64
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Rigidly align a displaced patch onto a plane",
		Long: `align tilts and lifts a small grid patch per frame and recovers the
transform with closest-point, point-to-plane rigid steps. The free degrees
of freedom, iteration count and closest-point neighbourhood come from the
rigid section of the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			target := gridMesh(opts.size, 1, 0)
			patch := gridMesh(opts.size, 0.5, 0)

			return opts.runFrames(cmd.Context(), cmd.OutOrStdout(), cfg.Threads,
				func(ctx context.Context, frame int, _ *rigsolve.ThreadPool) (string, error) {
					src := displace(patch.Vertices, frame)
					res, err := fitting.AlignRigid(ctx, src, target, fitting.AlignOptions{
						Free:       cfg.Rigid.FreeMask(),
						Iterations: cfg.Rigid.Iterations,
						Tolerance:  tolerance,
						Neighbours: cfg.Rigid.Neighbours,
						Initial:    rigid.Identity(),
					})
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%d iterations, rms %.3g, converged %v, %s",
						res.Iterations, res.RMS, res.Converged, res.Transform), nil
				})
		},
	}
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "stop once the transform moves less than this")
	return cmd
}

// displace tilts about x and lifts the vertices more with every frame.
func displace(vertices []float64, frame int) []float64 {
	f := float64(frame + 1)
	tr := rigid.Rotation(r3.Vec{X: 0.03 * f})
	tr.T = r3.Vec{X: 0.02 * f, Z: 0.2 * f}

	out := slices.Clone(vertices)
	tr.ApplyTo(out)
	return out
}
