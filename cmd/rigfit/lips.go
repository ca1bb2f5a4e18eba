package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/internal/fitting"
)

// lipGap is the rest distance between the synthetic lip strips.
const lipGap = 0.2

func newLipsCmd(opts *options) *cobra.Command {
	var (
		iterations int
		tolerance  float64
	)
	cmd := &cobra.Command{
		Use:   "lips",
		Short: "Close two lip strips once their landmark contours meet",
		Long: `lips stacks an upper lip strip above a lower one. The detected lip
contours approach each other with every frame and touch on the last. Once
the contours are within the contact threshold the lips are pulled onto each
other. Weights come from the lip_closure and regularization sections of
the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return opts.runFrames(cmd.Context(), cmd.OutOrStdout(), cfg.Threads,
				func(ctx context.Context, frame int, pool *rigsolve.ThreadPool) (string, error) {
					rest, lips := lipStrips(opts.size, lipGap)
					gap := lipGap * float64(opts.frames-frame-1) / float64(opts.frames)
					p := fitting.Problem{
						Rest: rest,
						Lips: &fitting.Lips{
							Constraints: lips,
							Upper:       lipContour(opts.size, gap),
							Lower:       lipContour(opts.size, 0),
						},
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
					return fmt.Sprintf("contour gap %.3g, closed %v, %d pairs, mouth gap %.3g",
						gap, lips.ValidLipClosure(), lips.NumPairs(), mouthGap(res.Vertices)), nil
				})
		},
	}
	f := cmd.Flags()
	f.IntVar(&iterations, "iterations", 20, "maximum Gauss-Newton iterations")
	f.Float64Var(&tolerance, "tolerance", 1e-8, "stop once the step norm falls below this")
	return cmd
}

// mouthGap is the mean height of the upper strip minus that of the lower
// one; each strip holds half the vertices.
func mouthGap(vertices []float64) float64 {
	half := len(vertices) / 2
	var lower, upper float64
	for i := 2; i < half; i += 3 {
		lower += vertices[i]
		upper += vertices[half+i]
	}
	return (upper - lower) / float64(half/3)
}
