package rotmath

import "fmt"

// ScreenRotation is the display rotation relative to the device's natural
// orientation.
type ScreenRotation int

const (
	Rotation0 ScreenRotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// ParseScreenRotation accepts 0, 90, 180 or 270 degrees.
func ParseScreenRotation(deg int) (ScreenRotation, error) {
	switch deg {
	case 0:
		return Rotation0, nil
	case 90:
		return Rotation90, nil
	case 180:
		return Rotation180, nil
	case 270:
		return Rotation270, nil
	}
	return Rotation0, fmt.Errorf("rotmath: invalid screen rotation %d (want 0, 90, 180 or 270)", deg)
}

func (r ScreenRotation) Degrees() int {
	switch r {
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	}
	return 0
}

func (r ScreenRotation) String() string {
	return fmt.Sprintf("%d°", r.Degrees())
}
