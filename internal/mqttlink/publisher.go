package mqttlink

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type PublisherConfig struct {
	Topic string
	QoS   byte
	// MinInterval drops updates that arrive sooner than this after the last
	// published one. Zero publishes every update.
	MinInterval time.Duration
}

type estimatePayload struct {
	YawDeg   float64 `json:"yaw_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`
	AtUnixMs int64   `json:"at_unix_ms"`
}

// Publisher is an orientation.Listener that publishes each estimate as a
// retained JSON message. It never waits on the broker.
type Publisher struct {
	client publishClient
	cfg    PublisherConfig
	now    func() time.Time

	mu   sync.Mutex
	last time.Time

	sent   atomic.Uint64
	failed atomic.Bool
}

func NewPublisher(client publishClient, cfg PublisherConfig) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = "tiltview/orientation"
	}
	return &Publisher{client: client, cfg: cfg, now: time.Now}
}

// Sent counts publish attempts.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

func (p *Publisher) OnTiltUpdate(yaw, pitch, roll float64) {
	if p == nil || p.client == nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	if p.cfg.MinInterval > 0 && !p.last.IsZero() && now.Sub(p.last) < p.cfg.MinInterval {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.mu.Unlock()

	b, err := json.Marshal(estimatePayload{YawDeg: yaw, PitchDeg: pitch, RollDeg: roll, AtUnixMs: now.UnixMilli()})
	if err != nil {
		return
	}
	tok := p.client.Publish(p.cfg.Topic, p.cfg.QoS, true, b)
	p.sent.Add(1)
	// Only failures that are already known are reported, e.g. not connected.
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			if p.failed.CompareAndSwap(false, true) {
				log.Printf("mqttlink: publish %s: %v", p.cfg.Topic, err)
			}
			return
		}
		p.failed.Store(false)
	default:
	}
}
