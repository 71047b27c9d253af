package web

import (
	"sync"
	"time"
)

// TiltUpdate is one estimate as sent to stream subscribers.
type TiltUpdate struct {
	YawDeg   float64 `json:"yaw_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`
	AtUTC    string  `json:"at_utc"`
}

// TiltBroadcaster fans estimates out to stream clients (SSE, WebSocket).
// It keeps the most recent value so new subscribers get an immediate sample.
// Slow subscribers miss updates rather than blocking the publisher.
type TiltBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan TiltUpdate
	nextID   int
	last     TiltUpdate
	haveLast bool

	now func() time.Time
}

func NewTiltBroadcaster() *TiltBroadcaster {
	return &TiltBroadcaster{
		subs: make(map[int]chan TiltUpdate),
		now:  time.Now,
	}
}

func (b *TiltBroadcaster) Subscribe(buffer int) (int, <-chan TiltUpdate) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan TiltUpdate, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	b.mu.Unlock()
	return id, ch
}

func (b *TiltBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Last returns the most recent update, if any.
func (b *TiltBroadcaster) Last() (TiltUpdate, bool) {
	if b == nil {
		return TiltUpdate{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

// OnTiltUpdate makes the broadcaster an orientation.Listener.
func (b *TiltBroadcaster) OnTiltUpdate(yaw, pitch, roll float64) {
	b.Publish(TiltUpdate{YawDeg: yaw, PitchDeg: pitch, RollDeg: roll})
}

func (b *TiltBroadcaster) Publish(u TiltUpdate) {
	if b == nil {
		return
	}
	if u.AtUTC == "" {
		u.AtUTC = b.now().UTC().Format(time.RFC3339Nano)
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send.
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.last = u
	b.haveLast = true
	b.mu.Unlock()
}
