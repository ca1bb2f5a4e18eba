package rbf

import (
	"slices"

	"github.com/gogpu/rigsolve/internal/cache"
	"github.com/gogpu/rigsolve/internal/codec"
)

// CachedSolver memoizes Solve for repeated queries, which are common when a
// rig holds a pose over many frames. It is safe for concurrent use.
type CachedSolver struct {
	solver *Solver
	cache  *cache.Cache[string, []float64]
}

// NewCachedSolver wraps s, keeping the weights of at most limit distinct
// queries. A limit of 0 keeps every query.
func NewCachedSolver(s *Solver, limit int) *CachedSolver {
	return &CachedSolver{solver: s, cache: cache.New[string, []float64](limit)}
}

// Solver returns the wrapped solver.
func (c *CachedSolver) Solver() *Solver { return c.solver }

// Solve returns Solver().Solve(query), computing it only for queries not
// seen before. Queries are matched bit for bit. The returned slice is a
// copy the caller may modify.
func (c *CachedSolver) Solve(query []float64) []float64 {
	key := make([]byte, 0, 8*len(query))
	for _, v := range query {
		key = codec.AppendFloat64(key, v)
	}
	w := c.cache.GetOrCreate(string(key), func() []float64 {
		return c.solver.Solve(query)
	})
	return slices.Clone(w)
}

// Hits returns how many Solve calls were answered from the cache.
func (c *CachedSolver) Hits() uint64 { return c.cache.Stats().Hits }
