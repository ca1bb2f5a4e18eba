// Package rigsolve provides the numerical core used for facial-rig
// calibration and mesh fitting.
//
// # Overview
//
// rigsolve composes many independently produced, weighted residual blocks
// into one least-squares problem and assembles its Gauss-Newton normal
// equations in parallel. The outer fitting loop lives with the caller: each
// iteration it re-evaluates constraints, collects the residuals in a Cost,
// assembles JᵀJ and Jᵀr, solves the small linear system and updates its own
// state.
//
// # Quick Start
//
//	pool := rigsolve.NewThreadPool(0)
//	defer pool.Close()
//
//	vertices := rigsolve.NewDiffDataMatrix(3, n, positions, rigsolve.NewIdentityJacobian(3*n))
//
//	cost := rigsolve.NewCost()
//	cost.Add(residual, 1.0, "point2point", true)
//
//	jtj := mat.NewDense(cost.Cols(), cost.Cols(), nil)
//	cost.AddDenseJtJLower(jtj, 1.0, pool)
//
// # Architecture
//
// The library is organized into:
//   - Differentiable values: DiffData, DiffDataMatrix, Jacobian variants
//   - Aggregation: Cost
//   - Parallel kernels: ParallelNoAliasGEMV, ParallelAtALower, ThreadPool
//   - constraints: barycentric point-point, collision, lip closure
//   - rigid: single-step rigid alignment
//   - rbf: radial basis function correspondence weights
//   - config: named weights and toggles loaded from YAML
//
// # Errors
//
// Precondition violations (mismatched lengths, out-of-range indices,
// inconsistent dimensions) panic. Degenerate but legal inputs such as a zero
// weight, an empty correspondence set or a missing Jacobian contribute
// nothing. Decoding persisted state returns an error.
//
// # Concurrency
//
// Parallel routines are synchronous fork-join over an explicitly passed
// ThreadPool; a nil pool runs on the calling goroutine. Cost, DiffData and
// constraint data are owned by one caller at a time.
package rigsolve

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
