// Package sensorhub implements orientation.SensorSubsystem on top of
// simulated, recorded, networked and hardware sample sources.
//
// Every hub pushes samples into a Sink. Sinks must not block: the engine
// calls Unsubscribe from the goroutine that drains the sink.
package sensorhub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tiltview/internal/orientation"
)

// Sink accepts one sample and reports whether it was taken.
type Sink func(orientation.Sample) bool

var (
	ErrUnsupported = errors.New("sensorhub: source not offered")
	ErrClosed      = errors.New("sensorhub: hub closed")
)

// Hub is a SensorSubsystem that owns background resources.
type Hub interface {
	orientation.SensorSubsystem
	Close() error
}

// readFunc produces one sample of src. Returning ok=false skips the tick.
type readFunc func(src orientation.Source, now time.Time) (orientation.Sample, bool, error)

// pollHub runs one ticker goroutine per subscribed source.
type pollHub struct {
	name    string
	offered map[orientation.Source]bool
	read    readFunc
	sink    Sink
	now     func() time.Time

	mu      sync.Mutex
	running map[orientation.Source]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func newPollHub(name string, offered []orientation.Source, read readFunc, sink Sink) *pollHub {
	set := make(map[orientation.Source]bool, len(offered))
	for _, src := range offered {
		set[src] = true
	}
	return &pollHub{
		name:    name,
		offered: set,
		read:    read,
		sink:    sink,
		now:     time.Now,
		running: make(map[orientation.Source]context.CancelFunc),
	}
}

// Subscribe starts polling src every period. Subscribing an already running
// source restarts it at the new period.
func (h *pollHub) Subscribe(src orientation.Source, period time.Duration) error {
	if !h.offered[src] {
		return fmt.Errorf("%s %s: %w", h.name, src, ErrUnsupported)
	}
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if cancel, ok := h.running[src]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running[src] = cancel
	h.wg.Add(1)
	go h.poll(ctx, src, period)
	return nil
}

// Unsubscribe stops polling src. It does not wait for the poller to exit.
func (h *pollHub) Unsubscribe(src orientation.Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.running[src]; ok {
		cancel()
		delete(h.running, src)
	}
	return nil
}

func (h *pollHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for src, cancel := range h.running {
		cancel()
		delete(h.running, src)
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}

func (h *pollHub) subscribed(src orientation.Source) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.running[src]
	return ok
}

func (h *pollHub) poll(ctx context.Context, src orientation.Source, period time.Duration) {
	defer h.wg.Done()
	tick := time.NewTicker(period)
	defer tick.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		s, ok, err := h.read(src, h.now())
		if err != nil {
			// Log only when the error changes.
			if msg := err.Error(); msg != lastErr {
				log.Printf("%s: read %s: %v", h.name, src, err)
				lastErr = msg
			}
			continue
		}
		lastErr = ""
		if !ok || ctx.Err() != nil {
			continue
		}
		h.sink(s)
	}
}
