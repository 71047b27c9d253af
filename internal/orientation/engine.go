// Package orientation turns raw motion-sensor samples into a smoothed
// yaw/pitch/roll estimate.
//
// The Engine picks the best available stream (rotation vector, else gravity
// or accelerometer together with the magnetic field), remaps axes for the
// screen rotation, optionally measures against a captured origin, smooths
// each angle and notifies listeners.
package orientation

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"tiltview/internal/filter"
	"tiltview/internal/rotmath"
)

type Config struct {
	ScreenRotation rotmath.ScreenRotation
	// Relative measures angles against the orientation captured after the
	// last origin reset instead of the world frame.
	Relative bool
	// LowFactor smooths matrix-path output; HighFactor is used once rotation
	// vector data is active. Zero selects the filter package defaults.
	LowFactor  float64
	HighFactor float64
}

// Stats counts what happened to delivered samples.
type Stats struct {
	Samples           uint64 `json:"samples"`
	Estimates         uint64 `json:"estimates"`
	Ignored           uint64 `json:"ignored"`
	Malformed         uint64 `json:"malformed"`
	Degenerate        uint64 `json:"degenerate"`
	UnsubscribeErrors uint64 `json:"unsubscribe_errors"`
	LastError         string `json:"last_error,omitempty"`
}

type ListenerID int

type listenerEntry struct {
	id ListenerID
	l  Listener
}

// Engine is the orientation state machine.
//
// Not safe for concurrent use: sample delivery and control calls must be
// serialized by the caller.
type Engine struct {
	sensors  SensorSubsystem
	rotation rotmath.ScreenRotation
	relative bool
	tracking bool
	highF    float64
	lowF     float64

	sources sourceTable

	// Latest sample per stream.
	rotationVec quat.Number
	gravity     r3.Vec
	accel       r3.Vec
	magnetic    r3.Vec

	// Origin for relative mode. Only the one matching the active path is set.
	originMatrix   rotmath.Matrix3
	haveOriginMat  bool
	originInverse  quat.Number
	haveOriginQuat bool

	yawF, pitchF, rollF *filter.EMA

	listeners []listenerEntry
	nextID    ListenerID

	stats Stats
}

func New(sensors SensorSubsystem, cfg Config) *Engine {
	if cfg.LowFactor == 0 {
		cfg.LowFactor = filter.LowResponsiveness
	}
	if cfg.HighFactor == 0 {
		cfg.HighFactor = filter.HighResponsiveness
	}
	return &Engine{
		sensors:  sensors,
		rotation: cfg.ScreenRotation,
		relative: cfg.Relative,
		lowF:     cfg.LowFactor,
		highF:    cfg.HighFactor,
		yawF:     filter.NewEMA(cfg.LowFactor, 0),
		pitchF:   filter.NewEMA(cfg.LowFactor, 0),
		rollF:    filter.NewEMA(cfg.LowFactor, 0),
	}
}

// StartTracking subscribes to all four streams. Calling it while already
// tracking subscribes again.
func (e *Engine) StartTracking(samplingPeriod time.Duration) error {
	if e.sensors == nil {
		return fmt.Errorf("orientation: no sensor subsystem")
	}
	e.sources = e.sources.pending()
	e.tracking = true
	var firstErr error
	for _, src := range AllSources {
		if err := e.sensors.Subscribe(src, samplingPeriod); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orientation: subscribe %s: %w", src, err)
		}
	}
	return firstErr
}

// StopTracking unsubscribes every stream still delivering, zeroes the
// filters and forgets the latest samples.
func (e *Engine) StopTracking() error {
	var firstErr error
	if e.sensors != nil {
		for _, src := range AllSources {
			if !e.sources.subscribed(src) {
				continue
			}
			if err := e.sensors.Unsubscribe(src); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("orientation: unsubscribe %s: %w", src, err)
			}
		}
	}
	e.sources = sourceTable{}
	e.tracking = false
	e.rotationVec = quat.Number{}
	e.gravity, e.accel, e.magnetic = r3.Vec{}, r3.Vec{}, r3.Vec{}
	e.resetFilters(e.lowF)
	return firstErr
}

func (e *Engine) Tracking() bool { return e.tracking }

// ResetOrigin forgets the captured origin so the next estimate captures a
// new one. With immediate the filters also snap to zero; otherwise the
// output glides to the new origin.
func (e *Engine) ResetOrigin(immediate bool) {
	e.haveOriginMat = false
	e.haveOriginQuat = false
	e.originMatrix = rotmath.Matrix3{}
	e.originInverse = quat.Number{}
	if immediate {
		e.yawF.Reset(0)
		e.pitchF.Reset(0)
		e.rollF.Reset(0)
	}
}

// SetRelativeTracking switches between absolute and relative angles. It does
// not clear the origin.
func (e *Engine) SetRelativeTracking(relative bool) { e.relative = relative }

func (e *Engine) Relative() bool { return e.relative }

func (e *Engine) AddListener(l Listener) ListenerID {
	e.nextID++
	e.listeners = append(e.listeners, listenerEntry{id: e.nextID, l: l})
	return e.nextID
}

func (e *Engine) RemoveListener(id ListenerID) {
	for i, le := range e.listeners {
		if le.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// ChosenSource reports the stream driving estimates, or SourceNone.
func (e *Engine) ChosenSource() Source { return e.sources.chosen() }

func (e *Engine) SourceState(src Source) SourceState { return e.sources.state(src) }

func (e *Engine) Stats() Stats { return e.stats }

// HandleSample runs one event through the pipeline. It returns the estimate
// delivered to listeners, or false when no estimate was produced.
func (e *Engine) HandleSample(s Sample) (Estimate, bool) {
	e.stats.Samples++
	if !e.tracking || !e.sources.subscribed(s.Source) {
		e.stats.Ignored++
		return Estimate{}, false
	}
	if !s.Source.validLen(len(s.Values)) || hasNaN(s.Values) {
		e.stats.Malformed++
		e.stats.LastError = fmt.Sprintf("malformed %s sample (%d values)", s.Source, len(s.Values))
		return Estimate{}, false
	}

	if !e.store(s) {
		return Estimate{}, false
	}

	wasRV := e.sources.state(SourceRotationVector) == Active
	next, obsolete := e.sources.observe(s.Source)
	e.sources = next
	e.unsubscribe(obsolete)
	if !wasRV && e.sources.state(SourceRotationVector) == Active {
		e.setFactor(e.highF)
	}

	src := e.sources.chosen()
	if src == SourceNone {
		return Estimate{}, false
	}

	var yaw, pitch, roll float64
	if src == SourceRotationVector {
		yaw, pitch, roll = e.fromQuaternion()
	} else {
		var ok bool
		yaw, pitch, roll, ok = e.fromMatrix(src)
		if !ok {
			e.stats.Degenerate++
			return Estimate{}, false
		}
	}

	est := Estimate{
		Yaw:    e.yawF.Push(yaw),
		Pitch:  e.pitchF.Push(pitch),
		Roll:   e.rollF.Push(roll),
		Source: src,
		At:     s.Timestamp,
	}
	e.stats.Estimates++

	// Snapshot so a listener removing itself does not disturb iteration.
	ls := append([]listenerEntry(nil), e.listeners...)
	for _, le := range ls {
		le.l.OnTiltUpdate(est.Yaw, est.Pitch, est.Roll)
	}
	return est, true
}

func (e *Engine) store(s Sample) bool {
	v := s.Values
	switch s.Source {
	case SourceRotationVector:
		q, err := rotmath.FromRotationVector(v)
		if err != nil {
			e.stats.Malformed++
			e.stats.LastError = err.Error()
			return false
		}
		e.rotationVec = q
	case SourceGravity:
		e.gravity = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	case SourceAccelerometer:
		e.accel = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	case SourceMagneticField:
		e.magnetic = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	default:
		e.stats.Ignored++
		return false
	}
	return true
}

func (e *Engine) fromQuaternion() (yaw, pitch, roll float64) {
	q := rotmath.RemapQuaternion(e.rotationVec, e.rotation)
	if !e.relative {
		return rotmath.ToEuler(q)
	}
	if !e.haveOriginQuat {
		e.originInverse = rotmath.Invert(q)
		e.haveOriginQuat = true
		// Only the active path's origin stays valid.
		e.originMatrix, e.haveOriginMat = rotmath.Matrix3{}, false
	}
	return rotmath.ToEuler(rotmath.Multiply(e.originInverse, q))
}

func (e *Engine) fromMatrix(src Source) (yaw, pitch, roll float64, ok bool) {
	down := e.accel
	if src == SourceGravity {
		down = e.gravity
	}
	m, ok := rotmath.RotationMatrix(down, e.magnetic)
	if !ok {
		return 0, 0, 0, false
	}
	m = rotmath.RemapMatrix(m, e.rotation)

	var o [3]float64
	if e.relative {
		if !e.haveOriginMat {
			e.originMatrix = m
			e.haveOriginMat = true
			e.originInverse, e.haveOriginQuat = quat.Number{}, false
		}
		o = rotmath.AngleChange(m, e.originMatrix)
	} else {
		o = rotmath.MatrixOrientation(m)
	}
	return rotmath.Degrees(o[0]), rotmath.Degrees(o[1]), rotmath.Degrees(o[2]), true
}

func (e *Engine) unsubscribe(srcs []Source) {
	if e.sensors == nil {
		return
	}
	for _, src := range srcs {
		if err := e.sensors.Unsubscribe(src); err != nil {
			e.stats.UnsubscribeErrors++
			e.stats.LastError = fmt.Sprintf("unsubscribe %s: %v", src, err)
		}
	}
}

func (e *Engine) setFactor(f float64) {
	e.yawF.SetFactor(f)
	e.pitchF.SetFactor(f)
	e.rollF.SetFactor(f)
}

func (e *Engine) resetFilters(f float64) {
	for _, ema := range []*filter.EMA{e.yawF, e.pitchF, e.rollF} {
		ema.Reset(0)
		ema.SetFactor(f)
	}
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
