package sensorhub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tiltview/internal/orientation"
	"tiltview/internal/replay"
)

type ReplayConfig struct {
	Records []replay.Record
	Speed   float64
	Loop    bool
	// Sleeper overrides wall-clock waits, for tests.
	Sleeper replay.Sleeper
}

// ReplayHub plays a recorded sample log. Playback starts on the first
// Subscribe and delivers only currently subscribed sources, stamped with the
// delivery time.
type ReplayHub struct {
	cfg  ReplayConfig
	sink Sink
	now  func() time.Time

	mu      sync.Mutex
	subs    map[orientation.Source]bool
	offered map[orientation.Source]bool
	started bool
	closed  bool
	cancel  context.CancelFunc
	err     error

	done chan struct{}
}

func NewReplayHub(cfg ReplayConfig, sink Sink) (*ReplayHub, error) {
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("replayhub: speed must be > 0")
	}
	offered := map[orientation.Source]bool{}
	for _, r := range cfg.Records {
		if !r.Start {
			offered[r.Source] = true
		}
	}
	if len(offered) == 0 {
		return nil, fmt.Errorf("replayhub: no samples in log")
	}
	return &ReplayHub{
		cfg:     cfg,
		sink:    sink,
		now:     time.Now,
		subs:    map[orientation.Source]bool{},
		offered: offered,
		done:    make(chan struct{}),
	}, nil
}

func (h *ReplayHub) Subscribe(src orientation.Source, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if !h.offered[src] {
		return fmt.Errorf("replayhub %s: %w", src, ErrUnsupported)
	}
	h.subs[src] = true
	if !h.started {
		h.started = true
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.play(ctx)
	}
	return nil
}

func (h *ReplayHub) Unsubscribe(src orientation.Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, src)
	return nil
}

// Done is closed when playback ends, either at the end of a non-looping log
// or on Close.
func (h *ReplayHub) Done() <-chan struct{} { return h.done }

// Err reports why playback ended. It is nil for a completed log.
func (h *ReplayHub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *ReplayHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	started := h.started
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()
	if started {
		<-h.done
	} else {
		close(h.done)
	}
	return nil
}

func (h *ReplayHub) play(ctx context.Context) {
	defer close(h.done)
	err := replay.Play(ctx, h.cfg.Records, h.cfg.Speed, h.cfg.Loop, h.cfg.Sleeper, func(r replay.Record) error {
		h.mu.Lock()
		want := h.subs[r.Source]
		h.mu.Unlock()
		if !want {
			return nil
		}
		vals := append([]float64(nil), r.Values...)
		h.sink(orientation.Sample{Source: r.Source, Values: vals, Timestamp: h.now()})
		return nil
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Printf("replayhub: playback stopped: %v", err)
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
