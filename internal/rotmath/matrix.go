package rotmath

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Gravity below 10% of standard gravity is treated as free fall.
const freeFallNormSq = (StandardGravity * 0.1) * (StandardGravity * 0.1)

// Matrix3 is a row-major 3x3 rotation matrix that maps device coordinates
// into world coordinates (east, north, up).
type Matrix3 [9]float64

var IdentityMatrix = Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Axis names a device axis for RemapCoordinateSystem. The high bit marks the
// negated axis.
type Axis int

const (
	AxisX      Axis = 0x01
	AxisY      Axis = 0x02
	AxisZ      Axis = 0x03
	AxisMinusX Axis = AxisX | 0x80
	AxisMinusY Axis = AxisY | 0x80
	AxisMinusZ Axis = AxisZ | 0x80
)

var ErrInvalidAxes = errors.New("rotmath: invalid axis remap")

// RotationMatrix derives the device orientation from a gravity (or raw
// accelerometer) vector and a geomagnetic vector, both in device coordinates.
//
// It reports false when the vectors do not define a frame: gravity and field
// nearly colinear, a near-zero field, or free fall.
func RotationMatrix(gravity, geomagnetic r3.Vec) (Matrix3, bool) {
	if r3.Dot(gravity, gravity) < freeFallNormSq {
		return Matrix3{}, false
	}
	h := r3.Cross(geomagnetic, gravity)
	normH := r3.Norm(h)
	if normH < 0.1 || math.IsNaN(normH) {
		return Matrix3{}, false
	}
	h = r3.Scale(1/normH, h)
	a := r3.Scale(1/r3.Norm(gravity), gravity)
	m := r3.Cross(a, h)
	return Matrix3{
		h.X, h.Y, h.Z,
		m.X, m.Y, m.Z,
		a.X, a.Y, a.Z,
	}, true
}

// MatrixFromQuaternion returns the rotation matrix of a unit quaternion.
func MatrixFromQuaternion(q quat.Number) Matrix3 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Matrix3{
		1 - 2*y*y - 2*z*z, 2*x*y - 2*z*w, 2*x*z + 2*y*w,
		2*x*y + 2*z*w, 1 - 2*x*x - 2*z*z, 2*y*z - 2*x*w,
		2*x*z - 2*y*w, 2*y*z + 2*x*w, 1 - 2*x*x - 2*y*y,
	}
}

// Transpose is the inverse for rotation matrices.
func (m Matrix3) Transpose() Matrix3 {
	return Matrix3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// MulVec returns m·v.
func (m Matrix3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// MatrixOrientation returns azimuth, pitch and roll in radians.
func MatrixOrientation(m Matrix3) [3]float64 {
	return [3]float64{
		math.Atan2(m[1], m[4]),
		math.Asin(clampUnit(-m[7])),
		math.Atan2(-m[6], m[8]),
	}
}

// AngleChange returns the azimuth, pitch and roll (radians) of m expressed
// in the frame of prev, i.e. the orientation of prevᵀ·m.
func AngleChange(m, prev Matrix3) [3]float64 {
	rd1 := prev[0]*m[1] + prev[3]*m[4] + prev[6]*m[7]
	rd4 := prev[1]*m[1] + prev[4]*m[4] + prev[7]*m[7]
	rd6 := prev[2]*m[0] + prev[5]*m[3] + prev[8]*m[6]
	rd7 := prev[2]*m[1] + prev[5]*m[4] + prev[8]*m[7]
	rd8 := prev[2]*m[2] + prev[5]*m[5] + prev[8]*m[8]
	return [3]float64{
		math.Atan2(rd1, rd4),
		math.Asin(clampUnit(-rd7)),
		math.Atan2(-rd6, rd8),
	}
}

// RemapCoordinateSystem re-expresses m with the device X and Y axes replaced
// by x and y. The new Z axis follows from the right-hand rule.
func RemapCoordinateSystem(m Matrix3, x, y Axis) (Matrix3, error) {
	if x&0x7C != 0 || y&0x7C != 0 || x&0x3 == 0 || y&0x3 == 0 {
		return Matrix3{}, ErrInvalidAxes
	}
	if x&0x3 == y&0x3 {
		return Matrix3{}, ErrInvalidAxes
	}
	z := x ^ y
	xi := int(x&0x3) - 1
	yi := int(y&0x3) - 1
	zi := int(z&0x3) - 1

	// Flip Z when X,Y are not a cyclic (right-handed) pair.
	axisY := (zi + 1) % 3
	axisZ := (zi + 2) % 3
	if (xi^axisY)|(yi^axisZ) != 0 {
		z ^= 0x80
	}
	sx := x >= 0x80
	sy := y >= 0x80
	sz := z >= 0x80

	var out Matrix3
	for row := 0; row < 3; row++ {
		off := row * 3
		for col := 0; col < 3; col++ {
			switch col {
			case xi:
				out[off+col] = signed(m[off+0], sx)
			case yi:
				out[off+col] = signed(m[off+1], sy)
			case zi:
				out[off+col] = signed(m[off+2], sz)
			}
		}
	}
	return out, nil
}

// RemapMatrix applies the axis remap for the given screen rotation.
func RemapMatrix(m Matrix3, r ScreenRotation) Matrix3 {
	var x, y Axis
	switch r {
	case Rotation90:
		x, y = AxisY, AxisMinusX
	case Rotation180:
		x, y = AxisMinusX, AxisMinusY
	case Rotation270:
		x, y = AxisMinusY, AxisX
	default:
		return m
	}
	out, err := RemapCoordinateSystem(m, x, y)
	if err != nil {
		// Fixed axis pairs above are always valid.
		return m
	}
	return out
}

func signed(v float64, negate bool) float64 {
	if negate {
		return -v
	}
	return v
}
