package rbf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"
)

// DistanceMetric measures how far a query feature is from a target feature.
// Implementations must be safe for concurrent use.
type DistanceMetric interface {
	Distance(a, b []float64) float64
}

// Euclidean is the L2 distance between feature vectors.
type Euclidean struct{}

func (Euclidean) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Axis selects the twist axis of swing/twist metrics.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// QuaternionDistance treats features as consecutive (x, y, z, w) rotation
// quaternions and sums the rotation angle between corresponding blocks.
type QuaternionDistance struct{}

func (QuaternionDistance) Distance(a, b []float64) float64 {
	return sumBlocks(a, b, func(r quat.Number) float64 { return rotationAngle(r) })
}

// SwingAngle sums the swing part of the relative rotation of each quaternion
// block, ignoring rotation about the twist axis.
type SwingAngle struct {
	TwistAxis Axis
}

func (s SwingAngle) Distance(a, b []float64) float64 {
	return sumBlocks(a, b, func(r quat.Number) float64 {
		swing, _ := swingTwist(r, s.TwistAxis)
		return rotationAngle(swing)
	})
}

// TwistAngle sums the rotation about the twist axis of the relative rotation
// of each quaternion block.
type TwistAngle struct {
	TwistAxis Axis
}

func (t TwistAngle) Distance(a, b []float64) float64 {
	return sumBlocks(a, b, func(r quat.Number) float64 {
		_, twist := swingTwist(r, t.TwistAxis)
		return rotationAngle(twist)
	})
}

// sumBlocks applies angle to the relative rotation conj(qa)·qb of every
// quaternion block.
func sumBlocks(a, b []float64, angle func(quat.Number) float64) float64 {
	if len(a) != len(b) || len(a)%4 != 0 {
		panic(fmt.Sprintf("rbf: quaternion features of length %d and %d", len(a), len(b)))
	}
	var sum float64
	for i := 0; i < len(a); i += 4 {
		qa := unitQuat(a[i : i+4])
		qb := unitQuat(b[i : i+4])
		sum += angle(quat.Mul(quat.Conj(qa), qb))
	}
	return sum
}

// unitQuat reads (x, y, z, w) and normalizes. A zero block is the identity.
func unitQuat(v []float64) quat.Number {
	q := quat.Number{Real: v[3], Imag: v[0], Jmag: v[1], Kmag: v[2]}
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// rotationAngle returns the rotation angle in [0, π] of a unit quaternion,
// identifying q with −q.
func rotationAngle(q quat.Number) float64 {
	v := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	return 2 * math.Atan2(v, math.Abs(q.Real))
}

// swingTwist decomposes q = swing·twist where twist rotates about axis.
func swingTwist(q quat.Number, axis Axis) (swing, twist quat.Number) {
	twist = quat.Number{Real: q.Real}
	switch axis {
	case AxisX:
		twist.Imag = q.Imag
	case AxisY:
		twist.Jmag = q.Jmag
	default:
		twist.Kmag = q.Kmag
	}
	n := quat.Abs(twist)
	if n == 0 {
		// 180° swing: the twist is undefined, take none.
		return q, quat.Number{Real: 1}
	}
	twist = quat.Scale(1/n, twist)
	swing = quat.Mul(q, quat.Conj(twist))
	return swing, twist
}
