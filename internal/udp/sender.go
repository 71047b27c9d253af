// Package udp streams estimates to a renderer as JSON datagrams.
package udp

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Datagram is the payload of one estimate. Seq increases by one per send so
// the receiver can detect loss.
type Datagram struct {
	Seq      uint64  `json:"seq"`
	YawDeg   float64 `json:"yaw_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`
	AtUnixMs int64   `json:"at_unix_ms"`
}

type Sender struct {
	dest string
	now  func() time.Time

	mu   sync.Mutex
	conn udpConn
	seq  uint64

	errors atomic.Uint64
}

func NewSender(dest string) (*Sender, error) {
	return newSender(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newSender(dest string, resolve resolveFunc, dial dialFunc) (*Sender, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Sender{dest: dest, conn: conn, now: time.Now}, nil
}

func (s *Sender) Dest() string { return s.dest }

// Errors counts consecutive failed writes; a successful send resets it.
func (s *Sender) Errors() uint64 { return s.errors.Load() }

func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return net.ErrClosed
	}
	_, err := s.conn.Write(payload)
	return err
}

// OnTiltUpdate makes the sender an orientation.Listener. Write errors are
// counted and the first one of a run is logged.
func (s *Sender) OnTiltUpdate(yaw, pitch, roll float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	d := Datagram{Seq: s.seq, YawDeg: yaw, PitchDeg: pitch, RollDeg: roll, AtUnixMs: s.now().UnixMilli()}
	s.mu.Unlock()

	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.Send(b); err != nil {
		if s.errors.Add(1) == 1 {
			log.Printf("udp: send to %s: %v", s.dest, err)
		}
		return
	}
	s.errors.Store(0)
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
