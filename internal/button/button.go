// Package button recentres tracking from a momentary push button on a GPIO
// line. A press resets the origin immediately.
package button

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

type Config struct {
	// Pin is BCM GPIO numbering; the button pulls the line to ground.
	Pin      int
	Debounce time.Duration
}

// Resetter is satisfied by tilt.Service.
type Resetter interface {
	ResetOrigin(ctx context.Context, immediate bool) error
}

// debouncer accepts an edge only if the previous accepted edge is at least
// window older. Timestamps come from the kernel event and are monotonic.
type debouncer struct {
	window time.Duration
	last   time.Duration
	have   bool
}

func (d *debouncer) accept(ts time.Duration) bool {
	if d.have && ts-d.last < d.window {
		return false
	}
	d.last = ts
	d.have = true
	return true
}

type Button struct {
	target  Resetter
	line    io.Closer
	presses chan struct{}

	mu  sync.Mutex
	deb debouncer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Open requests the GPIO line and starts dispatching presses to target until
// ctx ends or Close is called.
func Open(ctx context.Context, cfg Config, target Resetter) (*Button, error) {
	if target == nil {
		return nil, fmt.Errorf("button: target is nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	b := newButton(cfg, target)
	line, err := openLineFn(cfg.Pin, b.edge)
	if err != nil {
		return nil, err
	}
	b.line = line
	go b.run(ctx)
	log.Printf("button: recenter on GPIO%d", cfg.Pin)
	return b, nil
}

func newButton(cfg Config, target Resetter) *Button {
	return &Button{
		target:  target,
		presses: make(chan struct{}, 1),
		deb:     debouncer{window: cfg.Debounce},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// edge is called from the GPIO event goroutine for every falling edge.
func (b *Button) edge(ts time.Duration) {
	b.mu.Lock()
	ok := b.deb.accept(ts)
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case b.presses <- struct{}{}:
	default:
	}
}

func (b *Button) run(ctx context.Context) {
	defer close(b.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-b.presses:
			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := b.target.ResetOrigin(rctx, true)
			cancel()
			if err != nil {
				log.Printf("button: reset origin: %v", err)
				continue
			}
			log.Printf("button: origin reset")
		}
	}
}

func (b *Button) Close() error {
	if b == nil {
		return nil
	}
	var err error
	b.stopOnce.Do(func() {
		close(b.stopCh)
		if b.line != nil {
			err = b.line.Close()
		}
		<-b.doneCh
	})
	return err
}
