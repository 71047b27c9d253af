package web

import (
	"sync/atomic"
	"time"

	"tiltview/internal/tilt"
)

// Status collects what /api/status reports beyond the live tilt state.
type Status struct {
	startUnixNano int64
	sensorSource  atomic.Value // string
	outputs       atomic.Value // map[string]any
	tiltFn        atomic.Value // func() tilt.Snapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.sensorSource.Store("")
	s.outputs.Store(map[string]any{})
	s.tiltFn.Store(func() tilt.Snapshot { return tilt.Snapshot{} })
	return s
}

// SetStatic records the configured sensor source and enabled outputs.
func (s *Status) SetStatic(sensorSource string, outputs map[string]any) {
	if sensorSource != "" {
		s.sensorSource.Store(sensorSource)
	}
	if outputs != nil {
		s.outputs.Store(outputs)
	}
}

// SetTiltSource wires the live snapshot provider, usually tilt.Service.Snapshot.
func (s *Status) SetTiltSource(fn func() tilt.Snapshot) {
	if fn != nil {
		s.tiltFn.Store(fn)
	}
}

type StatusSnapshot struct {
	Service      string         `json:"service"`
	NowUTC       string         `json:"now_utc"`
	UptimeSec    int64          `json:"uptime_sec"`
	SensorSource string         `json:"sensor_source"`
	Outputs      map[string]any `json:"outputs"`
	Tilt         tilt.Snapshot  `json:"tilt"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	return StatusSnapshot{
		Service:      "tiltview",
		NowUTC:       nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:    int64(nowUTC.Sub(start).Seconds()),
		SensorSource: s.sensorSource.Load().(string),
		Outputs:      s.outputs.Load().(map[string]any),
		Tilt:         s.tiltFn.Load().(func() tilt.Snapshot)(),
	}
}
