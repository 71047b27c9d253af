package orientation

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies a raw motion-sensor stream.
type Source int

const (
	SourceNone Source = iota
	SourceRotationVector
	SourceGravity
	SourceAccelerometer
	SourceMagneticField
)

const numSources = int(SourceMagneticField) + 1

// AllSources lists the streams the engine subscribes to, in subscription order.
var AllSources = []Source{SourceRotationVector, SourceMagneticField, SourceGravity, SourceAccelerometer}

func (s Source) String() string {
	switch s {
	case SourceRotationVector:
		return "rotation_vector"
	case SourceGravity:
		return "gravity"
	case SourceAccelerometer:
		return "accelerometer"
	case SourceMagneticField:
		return "magnetic_field"
	case SourceNone:
		return "none"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSource accepts the String form, case-insensitive. Dashes are
// treated as underscores.
func ParseSource(name string) (Source, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	switch n {
	case "rotation_vector", "rv":
		return SourceRotationVector, nil
	case "gravity":
		return SourceGravity, nil
	case "accelerometer", "accel":
		return SourceAccelerometer, nil
	case "magnetic_field", "mag":
		return SourceMagneticField, nil
	case "none", "":
		return SourceNone, nil
	}
	return SourceNone, fmt.Errorf("orientation: unknown source %q", name)
}

// validLen reports whether n floats is a well-formed sample of s. Rotation
// vectors carry at least 4 (x, y, z, w[, accuracy]); vectors exactly 3.
func (s Source) validLen(n int) bool {
	switch s {
	case SourceRotationVector:
		return n >= 4
	case SourceGravity, SourceAccelerometer, SourceMagneticField:
		return n == 3
	}
	return false
}

// Sample is one raw reading. Values are copied by the engine; callers may
// reuse the slice after HandleSample returns.
type Sample struct {
	Source    Source
	Values    []float64
	Timestamp time.Time
}

// Estimate is one yaw/pitch/roll output in degrees.
type Estimate struct {
	Yaw    float64   `json:"yaw_deg"`
	Pitch  float64   `json:"pitch_deg"`
	Roll   float64   `json:"roll_deg"`
	Source Source    `json:"source"`
	At     time.Time `json:"at"`
}

// Listener receives every estimate synchronously from sample processing.
// Implementations must not call back into the engine.
type Listener interface {
	OnTiltUpdate(yaw, pitch, roll float64)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(yaw, pitch, roll float64)

func (f ListenerFunc) OnTiltUpdate(yaw, pitch, roll float64) { f(yaw, pitch, roll) }

// SensorSubsystem is the host sensor service the engine subscribes to.
// Both calls are fire-and-forget from the engine's point of view.
type SensorSubsystem interface {
	Subscribe(src Source, samplingPeriod time.Duration) error
	Unsubscribe(src Source) error
}
