package rotmath

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-9

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func requireQuatNear(t *testing.T, got, want quat.Number) {
	t.Helper()
	if !near(got.Real, want.Real, eps) || !near(got.Imag, want.Imag, eps) ||
		!near(got.Jmag, want.Jmag, eps) || !near(got.Kmag, want.Kmag, eps) {
		t.Fatalf("quat=%v want %v", got, want)
	}
}

func sampleQuats() []quat.Number {
	return []quat.Number{
		Identity,
		AxisAngle(1, 0, 0, 0.3),
		AxisAngle(0, 1, 0, -1.1),
		AxisAngle(0, 0, 1, 2.5),
		AxisAngle(1, 2, 3, 0.7),
		AxisAngle(-0.4, 0.2, 0.9, 3.0),
	}
}

func TestInvertTimesQuatIsIdentity(t *testing.T) {
	for _, q := range sampleQuats() {
		requireQuatNear(t, Multiply(Invert(q), q), Identity)
		requireQuatNear(t, Multiply(q, Invert(q)), Identity)
	}
}

func TestInvertDoesNotAlias(t *testing.T) {
	q := quat.Number{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5}
	inv := Invert(q)
	if q.Imag != 0.5 || q.Jmag != 0.5 || q.Kmag != 0.5 {
		t.Fatalf("input mutated: %v", q)
	}
	if inv.Real != 0.5 || inv.Imag != -0.5 || inv.Jmag != -0.5 || inv.Kmag != -0.5 {
		t.Fatalf("inv=%v", inv)
	}
}

func TestMultiplyOrderMatters(t *testing.T) {
	a := AxisAngle(1, 0, 0, math.Pi/2)
	b := AxisAngle(0, 1, 0, math.Pi/2)
	ab := Multiply(a, b)
	ba := Multiply(b, a)
	if near(ab.Kmag, ba.Kmag, eps) {
		t.Fatalf("expected non-commutative product, ab=%v ba=%v", ab, ba)
	}
}

func TestFromRotationVector(t *testing.T) {
	q, err := FromRotationVector([]float64{0.1, 0.2, 0.3, 0.9, 0.5})
	if err != nil {
		t.Fatalf("FromRotationVector: %v", err)
	}
	if q.Real != 0.9 || q.Imag != 0.1 || q.Jmag != 0.2 || q.Kmag != 0.3 {
		t.Fatalf("q=%v", q)
	}

	for _, short := range [][]float64{nil, {1, 2}, {0, 0, 0.6}} {
		if _, err := FromRotationVector(short); !errors.Is(err, ErrShortVector) {
			t.Fatalf("len=%d err=%v want ErrShortVector", len(short), err)
		}
	}
}

func TestToEuler_Identity(t *testing.T) {
	yaw, pitch, roll := ToEuler(Identity)
	if yaw != 0 || pitch != 0 || roll != 0 {
		t.Fatalf("got %v %v %v want zeros", yaw, pitch, roll)
	}
}

func TestToEuler_AxisSigns(t *testing.T) {
	const a = 0.4
	deg := Degrees(a)
	cases := []struct {
		name             string
		q                quat.Number
		yaw, pitch, roll float64
	}{
		{name: "AboutZ", q: AxisAngle(0, 0, 1, a), yaw: -deg},
		{name: "AboutX", q: AxisAngle(1, 0, 0, a), pitch: -deg},
		{name: "AboutY", q: AxisAngle(0, 1, 0, a), roll: deg},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaw, pitch, roll := ToEuler(tc.q)
			if !near(yaw, tc.yaw, 1e-6) || !near(pitch, tc.pitch, 1e-6) || !near(roll, tc.roll, 1e-6) {
				t.Fatalf("got (%v,%v,%v) want (%v,%v,%v)", yaw, pitch, roll, tc.yaw, tc.pitch, tc.roll)
			}
		})
	}
}

func TestToEulerMatchesMatrixOrientation_SingleAxis(t *testing.T) {
	// The two extractions use different rotation sequences; they agree on
	// single-axis rotations.
	single := []quat.Number{
		AxisAngle(1, 0, 0, 0.3),
		AxisAngle(0, 1, 0, -1.1),
		AxisAngle(0, 0, 1, 2.5),
		AxisAngle(1, 0, 0, -1.2),
	}
	for _, q := range single {
		yaw, pitch, roll := ToEuler(q)
		o := MatrixOrientation(MatrixFromQuaternion(q))
		if !near(yaw, Degrees(o[0]), 1e-6) || !near(pitch, Degrees(o[1]), 1e-6) || !near(roll, Degrees(o[2]), 1e-6) {
			t.Fatalf("q=%v euler=(%v,%v,%v) matrix=(%v,%v,%v)", q, yaw, pitch, roll,
				Degrees(o[0]), Degrees(o[1]), Degrees(o[2]))
		}
	}
}

func TestRemapQuaternion(t *testing.T) {
	q := quat.Number{Real: 0.1, Imag: 0.2, Jmag: 0.3, Kmag: 0.4}
	cases := []struct {
		r    ScreenRotation
		want quat.Number
	}{
		{r: Rotation0, want: q},
		{r: Rotation90, want: quat.Number{Real: 0.1, Imag: -0.3, Jmag: 0.2, Kmag: 0.4}},
		{r: Rotation180, want: quat.Number{Real: 0.1, Imag: -0.2, Jmag: -0.3, Kmag: 0.4}},
		{r: Rotation270, want: quat.Number{Real: 0.1, Imag: 0.3, Jmag: -0.2, Kmag: 0.4}},
	}
	for _, tc := range cases {
		requireQuatNear(t, RemapQuaternion(q, tc.r), tc.want)
	}
}

func TestRemapQuaternion_Closure(t *testing.T) {
	q := AxisAngle(1, 2, 3, 0.7)

	requireQuatNear(t, RemapQuaternion(RemapQuaternion(q, Rotation90), Rotation270), q)
	requireQuatNear(t, RemapQuaternion(RemapQuaternion(q, Rotation180), Rotation180), q)

	got := q
	for i := 0; i < 4; i++ {
		got = RemapQuaternion(got, Rotation90)
	}
	requireQuatNear(t, got, q)

	// 0+90+180+270 is a half turn, so one more 180 closes the loop.
	got = q
	for _, r := range []ScreenRotation{Rotation0, Rotation90, Rotation180, Rotation270, Rotation180} {
		got = RemapQuaternion(got, r)
	}
	requireQuatNear(t, got, q)
}

func TestRotationMatrix_FlatFacingNorth(t *testing.T) {
	gravity := r3.Vec{Z: 9.81}
	field := r3.Vec{Y: 22, Z: -40}
	m, ok := RotationMatrix(gravity, field)
	if !ok {
		t.Fatalf("expected ok")
	}
	for i, want := range IdentityMatrix {
		if !near(m[i], want, 1e-9) {
			t.Fatalf("m=%v want identity", m)
		}
	}
}

func TestRotationMatrix_Degenerate(t *testing.T) {
	cases := []struct {
		name           string
		gravity, field r3.Vec
	}{
		{name: "Colinear", gravity: r3.Vec{Z: 9.81}, field: r3.Vec{Z: -45}},
		{name: "ZeroField", gravity: r3.Vec{Z: 9.81}, field: r3.Vec{}},
		{name: "FreeFall", gravity: r3.Vec{Z: 0.2}, field: r3.Vec{Y: 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := RotationMatrix(tc.gravity, tc.field); ok {
				t.Fatalf("expected failure")
			}
		})
	}
}

func TestRotationMatrix_RecoversQuaternionOrientation(t *testing.T) {
	worldGravity := r3.Vec{Z: StandardGravity}
	worldField := r3.Vec{Y: 20, Z: -43}
	for _, q := range sampleQuats()[:5] {
		r := MatrixFromQuaternion(q)
		// Device-frame readings are Rᵀ applied to world vectors.
		rt := r.Transpose()
		m, ok := RotationMatrix(rt.MulVec(worldGravity), rt.MulVec(worldField))
		if !ok {
			t.Fatalf("q=%v: expected ok", q)
		}
		for i := range m {
			if !near(m[i], r[i], 1e-9) {
				t.Fatalf("q=%v m=%v want %v", q, m, r)
			}
		}
	}
}

func TestAngleChange_SelfIsZero(t *testing.T) {
	m := MatrixFromQuaternion(AxisAngle(1, 2, 3, 0.7))
	got := AngleChange(m, m)
	for i, v := range got {
		if !near(v, 0, 1e-9) {
			t.Fatalf("angle[%d]=%v want 0", i, v)
		}
	}
}

func TestAngleChange_MatchesRelativeQuaternion(t *testing.T) {
	q0 := AxisAngle(0.3, -1, 0.2, 0.5)
	q1 := Multiply(q0, AxisAngle(1, 0, 0, 0.25))
	got := AngleChange(MatrixFromQuaternion(q1), MatrixFromQuaternion(q0))
	yaw, pitch, roll := ToEuler(Multiply(Invert(q0), q1))
	if !near(Degrees(got[0]), yaw, 1e-6) || !near(Degrees(got[1]), pitch, 1e-6) || !near(Degrees(got[2]), roll, 1e-6) {
		t.Fatalf("matrix=(%v,%v,%v) quat=(%v,%v,%v)",
			Degrees(got[0]), Degrees(got[1]), Degrees(got[2]), yaw, pitch, roll)
	}
}

func TestRemapCoordinateSystem_InvalidAxes(t *testing.T) {
	pairs := [][2]Axis{{AxisX, AxisX}, {AxisX, AxisMinusX}, {0, AxisY}, {AxisX, 0x10}}
	for _, p := range pairs {
		if _, err := RemapCoordinateSystem(IdentityMatrix, p[0], p[1]); !errors.Is(err, ErrInvalidAxes) {
			t.Fatalf("axes=%v err=%v want ErrInvalidAxes", p, err)
		}
	}
}

func TestRemapMatrix_Rotation90(t *testing.T) {
	got := RemapMatrix(IdentityMatrix, Rotation90)
	want := Matrix3{0, 1, 0, -1, 0, 0, 0, 0, 1}
	if got != want {
		t.Fatalf("got=%v want %v", got, want)
	}
}

func TestRemapMatrix_RoundTrips(t *testing.T) {
	m := MatrixFromQuaternion(AxisAngle(1, 2, 3, 0.7))
	back := RemapMatrix(RemapMatrix(m, Rotation90), Rotation270)
	for i := range m {
		if !near(back[i], m[i], 1e-12) {
			t.Fatalf("back=%v want %v", back, m)
		}
	}
	if RemapMatrix(m, Rotation0) != m {
		t.Fatalf("Rotation0 should be identity remap")
	}
}

func TestParseScreenRotation(t *testing.T) {
	for _, deg := range []int{0, 90, 180, 270} {
		r, err := ParseScreenRotation(deg)
		if err != nil {
			t.Fatalf("ParseScreenRotation(%d): %v", deg, err)
		}
		if r.Degrees() != deg {
			t.Fatalf("Degrees()=%d want %d", r.Degrees(), deg)
		}
	}
	if _, err := ParseScreenRotation(45); err == nil {
		t.Fatalf("expected error for 45")
	}
}
