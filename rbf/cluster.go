package rbf

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/gogpu/rigsolve"
)

// ClusterTargets seeds a target library from sampled poses with k-means.
// Each cluster center becomes a target of the given scale; targets are
// ordered by cluster population, largest first.
func ClusterTargets(samples [][]float64, k int, scale float64) ([]Target, error) {
	if k < 1 || k > len(samples) {
		return nil, fmt.Errorf("rbf: cannot form %d clusters from %d samples", k, len(samples))
	}
	dims := len(samples[0])
	dataset := make(clusters.Observations, 0, len(samples))
	for i, s := range samples {
		if len(s) != dims {
			return nil, fmt.Errorf("rbf: sample %d has %d values, want %d", i, len(s), dims)
		}
		dataset = append(dataset, clusters.Coordinates(slices.Clone(s)))
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil {
		return nil, fmt.Errorf("rbf: clustering %d samples: %w", len(samples), err)
	}

	slices.SortStableFunc(cc, func(a, b clusters.Cluster) int {
		return cmp.Compare(len(b.Observations), len(a.Observations))
	})

	targets := make([]Target, 0, len(cc))
	for _, c := range cc {
		targets = append(targets, Target{Values: slices.Clone([]float64(c.Center)), Scale: scale})
	}
	rigsolve.Logger().Debug("rbf: clustered targets", "samples", len(samples), "targets", len(targets))
	return targets, nil
}
