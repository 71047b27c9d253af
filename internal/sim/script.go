package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"
)

// MotionScript is a keyframed device motion, loaded from YAML.
//
// Time is a Go duration string. If Duration is zero it is derived from the
// last keyframe.
//
//	version: 1
//	duration: 6s
//	keyframes:
//	  - t: 0s
//	    yaw_deg: 0
//	    pitch_deg: 0
//	    roll_deg: 0
//	  - t: 3s
//	    pitch_deg: 30
//
// Keyframes must be sorted by t.
type MotionScript struct {
	Version   int                `yaml:"version"`
	Duration  time.Duration      `yaml:"duration"`
	Keyframes []AttitudeKeyframe `yaml:"keyframes"`
}

type AttitudeKeyframe struct {
	T        time.Duration `yaml:"t"`
	YawDeg   float64       `yaml:"yaw_deg"`
	PitchDeg float64       `yaml:"pitch_deg"`
	RollDeg  float64       `yaml:"roll_deg"`
}

// Script is the validated runtime form of a MotionScript.
type Script struct {
	keyframes []AttitudeKeyframe
	duration  time.Duration
}

func LoadMotionScript(path string) (MotionScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return MotionScript{}, err
	}
	return ParseMotionScriptYAML(b)
}

func ParseMotionScriptYAML(b []byte) (MotionScript, error) {
	var s MotionScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return MotionScript{}, err
	}
	return s, nil
}

func NewScript(ms MotionScript) (*Script, error) {
	if ms.Version == 0 {
		ms.Version = 1
	}
	if ms.Version != 1 {
		return nil, fmt.Errorf("unsupported motion script version %d", ms.Version)
	}
	if len(ms.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range ms.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < ms.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}
	dur := ms.Duration
	if dur <= 0 {
		dur = ms.Keyframes[len(ms.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Script{keyframes: ms.Keyframes, duration: dur}, nil
}

func (s *Script) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// AttitudeAt interpolates the angles at elapsed. With loop the timeline wraps
// around Duration; otherwise elapsed is clamped to [0, Duration].
func (s *Script) AttitudeAt(elapsed time.Duration, loop bool) (yawDeg, pitchDeg, rollDeg float64) {
	if s == nil {
		return 0, 0, 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}
	k0, k1, alpha := s.segment(elapsed)
	return lerpAngleDeg(k0.YawDeg, k1.YawDeg, alpha),
		lerp(k0.PitchDeg, k1.PitchDeg, alpha),
		lerp(k0.RollDeg, k1.RollDeg, alpha)
}

func (s *Script) segment(t time.Duration) (AttitudeKeyframe, AttitudeKeyframe, float64) {
	kfs := s.keyframes
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0, k1 := kfs[idx-1], kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

// ScriptMotion plays a Script as wall-clock Motion starting at Start.
type ScriptMotion struct {
	Script *Script
	Start  time.Time
	Loop   bool
}

func (m ScriptMotion) Orientation(now time.Time) quat.Number {
	return FromAttitude(m.Script.AttitudeAt(now.Sub(m.Start), m.Loop))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shorter arc and returns (-180, 180].
func lerpAngleDeg(a0, a1, t float64) float64 {
	delta := a1 - a0
	for delta > 180 {
		delta -= 360
	}
	for delta < -180 {
		delta += 360
	}
	v := a0 + delta*t
	for v > 180 {
		v -= 360
	}
	for v <= -180 {
		v += 360
	}
	return v
}
