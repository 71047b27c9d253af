// Package sim produces deterministic device motion and the raw sensor
// readings a phone would report for it.
package sim

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"tiltview/internal/orientation"
	"tiltview/internal/rotmath"
)

// Motion yields the device-to-world orientation at a point in time.
type Motion interface {
	Orientation(now time.Time) quat.Number
}

// Environment is the world the simulated device sits in. Zero values select
// a 48 µT field with 60° dip.
type Environment struct {
	FieldMicroTesla float64
	// DipDeg is the magnetic inclination below the horizon.
	DipDeg float64
}

func (e Environment) withDefaults() Environment {
	if e.FieldMicroTesla <= 0 {
		e.FieldMicroTesla = 48
	}
	if e.DipDeg == 0 {
		e.DipDeg = 60
	}
	return e
}

// WorldField is the geomagnetic vector in world coordinates (east, north, up).
func (e Environment) WorldField() r3.Vec {
	e = e.withDefaults()
	dip := e.DipDeg * math.Pi / 180
	return r3.Vec{Y: e.FieldMicroTesla * math.Cos(dip), Z: -e.FieldMicroTesla * math.Sin(dip)}
}

// TiltSim rocks the device around a flat, north-facing pose.
//
// Yaw, pitch and roll are right-handed rotations about world z, device x and
// device y, each a sinusoid with its own phase so the axes do not move in lockstep.
type TiltSim struct {
	YawAmpDeg   float64
	PitchAmpDeg float64
	RollAmpDeg  float64
	Period      time.Duration

	Env Environment
}

func (s TiltSim) period() time.Duration {
	if s.Period <= 0 {
		return 8 * time.Second
	}
	return s.Period
}

// Attitude returns the commanded angles in degrees.
func (s TiltSim) Attitude(now time.Time) (yawDeg, pitchDeg, rollDeg float64) {
	p := s.period()
	phase := float64(now.UnixNano()%p.Nanoseconds()) / float64(p.Nanoseconds())
	w := 2 * math.Pi * phase
	yawDeg = s.YawAmpDeg * math.Sin(w)
	pitchDeg = s.PitchAmpDeg * math.Sin(w+math.Pi/3)
	rollDeg = s.RollAmpDeg * math.Sin(2*w)
	return yawDeg, pitchDeg, rollDeg
}

func (s TiltSim) Orientation(now time.Time) quat.Number {
	return FromAttitude(s.Attitude(now))
}

func (s TiltSim) Sample(src orientation.Source, now time.Time) orientation.Sample {
	return Sample(s, s.Env, src, now)
}

// FromAttitude composes yaw (world z), then pitch (device x), then roll
// (device y) into one orientation.
func FromAttitude(yawDeg, pitchDeg, rollDeg float64) quat.Number {
	rad := math.Pi / 180
	q := rotmath.Multiply(rotmath.AxisAngle(0, 0, 1, yawDeg*rad), rotmath.AxisAngle(1, 0, 0, pitchDeg*rad))
	return rotmath.Multiply(q, rotmath.AxisAngle(0, 1, 0, rollDeg*rad))
}

// Sample renders one raw reading of src for the motion at now.
//
// Rotation vector is x, y, z, w plus a zero heading accuracy. Gravity and
// accelerometer read +g along the axis pointing up, in m/s². Magnetic field
// is in µT. All vectors are device coordinates.
func Sample(m Motion, env Environment, src orientation.Source, now time.Time) orientation.Sample {
	q := m.Orientation(now)
	out := orientation.Sample{Source: src, Timestamp: now}
	toDevice := rotmath.MatrixFromQuaternion(q).Transpose()
	switch src {
	case orientation.SourceRotationVector:
		out.Values = []float64{q.Imag, q.Jmag, q.Kmag, q.Real, 0}
	case orientation.SourceGravity, orientation.SourceAccelerometer:
		out.Values = vec(toDevice.MulVec(r3.Vec{Z: rotmath.StandardGravity}))
	case orientation.SourceMagneticField:
		out.Values = vec(toDevice.MulVec(env.WorldField()))
	}
	return out
}

func vec(v r3.Vec) []float64 { return []float64{v.X, v.Y, v.Z} }
