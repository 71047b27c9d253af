// Package rotmath holds the pure orientation math used by the tilt engine:
// quaternion composition and Euler extraction, rotation-matrix derivation from
// gravity and geomagnetic vectors, and screen-rotation axis remapping.
//
// Quaternions are gonum quat.Number values with Real=w, Imag=x, Jmag=y and
// Kmag=z. Angles returned in degrees follow the platform getOrientation
// convention, counter-clockwise positive.
package rotmath

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// DegreesPerRadian matches the constant used by the platform math.
const DegreesPerRadian = 57.2957795

var ErrShortVector = errors.New("rotmath: rotation vector needs at least 4 values")

// Identity is the no-rotation quaternion.
var Identity = quat.Number{Real: 1}

func Degrees(rad float64) float64 { return rad * DegreesPerRadian }

// Multiply returns the Hamilton product qa⊗qb.
func Multiply(qa, qb quat.Number) quat.Number {
	return quat.Mul(qa, qb)
}

// Invert negates the imaginary part. For unit quaternions this is the inverse.
func Invert(q quat.Number) quat.Number {
	return quat.Conj(q)
}

// FromRotationVector converts rotation-vector sensor values (x, y, z, w[, accuracy])
// into a quaternion.
func FromRotationVector(values []float64) (quat.Number, error) {
	if len(values) < 4 {
		return quat.Number{}, ErrShortVector
	}
	return quat.Number{Real: values[3], Imag: values[0], Jmag: values[1], Kmag: values[2]}, nil
}

// ToEuler extracts yaw, pitch and roll in degrees.
//
// The axis to name mapping is deliberately crossed so the result matches
// MatrixOrientation on the equivalent rotation matrix: yaw is the negated
// z-axis term, pitch the negated x-axis term and roll the y-axis term.
func ToEuler(q quat.Number) (yaw, pitch, roll float64) {
	q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag

	xRad := math.Atan2(2*(q0*q1+q2*q3), 1-2*(q1*q1+q2*q2))
	yRad := math.Asin(clampUnit(2 * (q0*q2 - q3*q1)))
	zRad := math.Atan2(2*(q0*q3+q1*q2), 1-2*(q2*q2+q3*q3))

	yaw = -Degrees(zRad)
	pitch = -Degrees(xRad)
	roll = Degrees(yRad)
	return yaw, pitch, roll
}

// RemapQuaternion rotates the x/y imaginary components to compensate for the
// screen rotation. w and z are not touched.
func RemapQuaternion(q quat.Number, r ScreenRotation) quat.Number {
	x, y := q.Imag, q.Jmag
	switch r {
	case Rotation90:
		q.Imag, q.Jmag = -y, x
	case Rotation180:
		q.Imag, q.Jmag = -x, -y
	case Rotation270:
		q.Imag, q.Jmag = y, -x
	}
	return q
}

// AxisAngle builds a unit quaternion rotating angleRad around axis (x, y, z).
// A zero axis yields Identity.
func AxisAngle(x, y, z, angleRad float64) quat.Number {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return Identity
	}
	s := math.Sin(angleRad/2) / n
	return quat.Number{Real: math.Cos(angleRad / 2), Imag: x * s, Jmag: y * s, Kmag: z * s}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
