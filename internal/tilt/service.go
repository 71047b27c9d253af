package tilt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tiltview/internal/orientation"
)

var ErrNotRunning = errors.New("tilt: service not running")

type Config struct {
	SamplingPeriod time.Duration
	QueueSize      int
	Engine         orientation.Config
}

type Snapshot struct {
	Valid    bool               `json:"valid"`
	Tracking bool               `json:"tracking"`
	Relative bool               `json:"relative"`
	Source   orientation.Source `json:"source"`

	YawDeg   float64 `json:"yaw_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`

	Stats    orientation.Stats `json:"stats"`
	Dropped  uint64            `json:"dropped"`
	QueueLen int               `json:"queue_len"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Service owns an orientation.Engine and serializes every access to it on a
// single loop goroutine. Samples from any goroutine go through Deliver.
type Service struct {
	cfg     Config
	sensors orientation.SensorSubsystem
	engine  *orientation.Engine

	samples chan orientation.Sample
	ctrlCh  chan ctrlReq

	lmu       sync.RWMutex
	listeners []orientation.Listener

	mu   sync.RWMutex
	snap Snapshot

	dropped atomic.Uint64
	running atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type ctrlReq struct {
	fn   func(e *orientation.Engine) error
	done chan error
}

func New(cfg Config, sensors orientation.SensorSubsystem) *Service {
	if cfg.SamplingPeriod <= 0 {
		cfg.SamplingPeriod = 20 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	s := &Service{
		cfg:     cfg,
		sensors: sensors,
		engine:  orientation.New(sensors, cfg.Engine),
		samples: make(chan orientation.Sample, cfg.QueueSize),
		ctrlCh:  make(chan ctrlReq),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	s.engine.AddListener(orientation.ListenerFunc(s.fanout))
	s.snap.Relative = cfg.Engine.Relative
	return s
}

// Start subscribes the sensors and launches the loop. Subscribe failures for
// individual sources are logged; the engine falls back to whatever delivers.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("tilt: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("tilt: ctx is nil")
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		if err := s.engine.StartTracking(s.cfg.SamplingPeriod); err != nil {
			log.Printf("tilt: start tracking: %v", err)
		}
		s.running.Store(true)
		s.publish(s.engine, nil)
		go s.run(ctx)
	})
	if !started {
		return fmt.Errorf("tilt: already started")
	}
	return nil
}

// Close stops the loop and unsubscribes the sensors. Safe to call more than once.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.running.Load() {
		<-s.doneCh
	}
}

// Deliver queues a sample without blocking. It reports false when the queue
// is full or the service has stopped.
func (s *Service) Deliver(sample orientation.Sample) bool {
	if s == nil {
		return false
	}
	select {
	case <-s.stopCh:
		return false
	default:
	}
	select {
	case s.samples <- sample:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	snap.Dropped = s.dropped.Load()
	snap.QueueLen = len(s.samples)
	return snap
}

// AddListener registers l for every estimate. Listeners run on the loop
// goroutine and must not block.
func (s *Service) AddListener(l orientation.Listener) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
}

// ResetOrigin makes the current orientation the new zero in relative mode.
func (s *Service) ResetOrigin(ctx context.Context, immediate bool) error {
	return s.do(ctx, func(e *orientation.Engine) error {
		e.ResetOrigin(immediate)
		return nil
	})
}

func (s *Service) SetRelative(ctx context.Context, relative bool) error {
	return s.do(ctx, func(e *orientation.Engine) error {
		e.SetRelativeTracking(relative)
		return nil
	})
}

func (s *Service) do(ctx context.Context, fn func(e *orientation.Engine) error) error {
	if s == nil {
		return fmt.Errorf("tilt: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("tilt: ctx is nil")
	}
	if !s.running.Load() {
		return ErrNotRunning
	}
	done := make(chan error, 1)
	select {
	case s.ctrlCh <- ctrlReq{fn: fn, done: done}:
	case <-s.doneCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-s.doneCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case req := <-s.ctrlCh:
			err := req.fn(s.engine)
			s.publish(s.engine, nil)
			req.done <- err
		case sample := <-s.samples:
			est, ok := s.engine.HandleSample(sample)
			if ok {
				s.publish(s.engine, &est)
			} else {
				s.publish(s.engine, nil)
			}
		}
	}
}

func (s *Service) shutdown() {
	if err := s.engine.StopTracking(); err != nil {
		log.Printf("tilt: stop tracking: %v", err)
	}
	s.publish(s.engine, nil)
	s.mu.Lock()
	s.snap.Valid = false
	s.mu.Unlock()
}

func (s *Service) publish(e *orientation.Engine, est *orientation.Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Tracking = e.Tracking()
	s.snap.Relative = e.Relative()
	s.snap.Source = e.ChosenSource()
	s.snap.Stats = e.Stats()
	if est != nil {
		s.snap.Valid = true
		s.snap.YawDeg = est.Yaw
		s.snap.PitchDeg = est.Pitch
		s.snap.RollDeg = est.Roll
		s.snap.UpdatedAt = est.At
		if s.snap.UpdatedAt.IsZero() {
			s.snap.UpdatedAt = time.Now().UTC()
		}
	}
}

func (s *Service) fanout(yaw, pitch, roll float64) {
	s.lmu.RLock()
	ls := s.listeners
	s.lmu.RUnlock()
	for _, l := range ls {
		l.OnTiltUpdate(yaw, pitch, roll)
	}
}
