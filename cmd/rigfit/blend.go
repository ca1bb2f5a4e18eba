package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/rbf"
)

func newBlendCmd(opts *options) *cobra.Command {
	var (
		samples    int
		targets    int
		saveRecipe string
		loadRecipe string
	)
	cmd := &cobra.Command{
		Use:   "blend",
		Short: "Blend joint poses with an RBF solver seeded by k-means",
		Long: `blend samples a two-joint pose space, clusters the samples into a target
library and reports the RBF weights of the query pose of every frame. Each
query pose is held for two frames, and held poses are answered from a cache.
The solver settings come from the rbf section of the config. A recipe can
be saved for later runs or loaded instead of clustering.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var solver *rbf.Solver
			if loadRecipe != "" {
				data, err := os.ReadFile(loadRecipe)
				if err != nil {
					return fmt.Errorf("reading recipe: %w", err)
				}
				if solver, err = rbf.NewSolverFromRecipe(data); err != nil {
					return err
				}
			} else {
				params, err := cfg.RBF.Params()
				if err != nil {
					return err
				}
				library, err := rbf.ClusterTargets(jointPoses(samples), targets, 1)
				if err != nil {
					return err
				}
				solver = rbf.NewSolver(params, library)
			}

			if saveRecipe != "" {
				data, err := solver.Recipe().MarshalBinary()
				if err != nil {
					return err
				}
				if err := os.WriteFile(saveRecipe, data, 0o644); err != nil {
					return fmt.Errorf("writing recipe: %w", err)
				}
			}

			cached := rbf.NewCachedSolver(solver, opts.frames)
			queries := jointPoses((opts.frames + 1) / 2)
			err = opts.runFrames(cmd.Context(), cmd.OutOrStdout(), cfg.Threads,
				func(_ context.Context, frame int, _ *rigsolve.ThreadPool) (string, error) {
					return formatWeights(cached.Solve(queries[frame/2])), nil
				})
			rigsolve.Logger().Info("rbf: blend done", "frames", opts.frames, "cache hits", cached.Hits())
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&samples, "samples", 64, "pose samples to cluster")
	f.IntVar(&targets, "targets", 6, "RBF targets to form")
	f.StringVar(&saveRecipe, "save-recipe", "", "write the solver recipe to this file")
	f.StringVar(&loadRecipe, "recipe", "", "load the solver from a recipe file instead of clustering")
	return cmd
}

func formatWeights(w []float64) string {
	parts := make([]string, len(w))
	for i, v := range w {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "weights [" + strings.Join(parts, " ") + "]"
}
