package sensorhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltview/internal/orientation"
)

// Topic layout: samples arrive on <prefix>/<source>; the requested sampling
// period is published retained on <prefix>/<source>/rate.
//
// Sample payload: {"values":[x,y,z(,w...)],"timestamp_ns":N}. A zero or
// missing timestamp is replaced by the arrival time.

type MQTTConfig struct {
	TopicPrefix string
	QoS         byte
	// Timeout bounds waits on broker acknowledgements.
	Timeout time.Duration
}

type mqttClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type samplePayload struct {
	Values      []float64 `json:"values"`
	TimestampNs int64     `json:"timestamp_ns,omitempty"`
}

type ratePayload struct {
	PeriodMs int64 `json:"period_ms"`
}

// MQTTHub receives samples published by a phone or bridge over MQTT.
type MQTTHub struct {
	client mqttClient
	cfg    MQTTConfig
	sink   Sink
	now    func() time.Time

	mu     sync.Mutex
	subs   map[orientation.Source]bool
	closed bool

	bad atomic.Uint64
}

func NewMQTTHub(client mqttClient, cfg MQTTConfig, sink Sink) (*MQTTHub, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtthub: client is nil")
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tiltview/sensors"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTTHub{
		client: client,
		cfg:    cfg,
		sink:   sink,
		now:    time.Now,
		subs:   map[orientation.Source]bool{},
	}, nil
}

// SampleTopic is where samples for src are expected.
func (h *MQTTHub) SampleTopic(src orientation.Source) string {
	return h.cfg.TopicPrefix + "/" + src.String()
}

func (h *MQTTHub) RateTopic(src orientation.Source) string {
	return h.SampleTopic(src) + "/rate"
}

// Malformed counts payloads that could not be decoded.
func (h *MQTTHub) Malformed() uint64 { return h.bad.Load() }

func (h *MQTTHub) Subscribe(src orientation.Source, period time.Duration) error {
	if src == orientation.SourceNone {
		return ErrUnsupported
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.subs[src] = true
	h.mu.Unlock()

	topic := h.SampleTopic(src)
	if err := h.wait(h.client.Subscribe(topic, h.cfg.QoS, h.handler(src))); err != nil {
		h.mu.Lock()
		delete(h.subs, src)
		h.mu.Unlock()
		return fmt.Errorf("mqtthub: subscribe %s: %w", topic, err)
	}

	rate, _ := json.Marshal(ratePayload{PeriodMs: period.Milliseconds()})
	if err := h.wait(h.client.Publish(h.RateTopic(src), h.cfg.QoS, true, rate)); err != nil {
		log.Printf("mqtthub: publish rate for %s: %v", src, err)
	}
	return nil
}

// Unsubscribe stops delivery immediately and releases the broker
// subscription in the background.
func (h *MQTTHub) Unsubscribe(src orientation.Source) error {
	h.mu.Lock()
	was := h.subs[src]
	delete(h.subs, src)
	h.mu.Unlock()
	if !was {
		return nil
	}
	topic := h.SampleTopic(src)
	tok := h.client.Unsubscribe(topic)
	go func() {
		if err := h.wait(tok); err != nil {
			log.Printf("mqtthub: unsubscribe %s: %v", topic, err)
		}
	}()
	return nil
}

func (h *MQTTHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	topics := make([]string, 0, len(h.subs))
	for src := range h.subs {
		topics = append(topics, h.SampleTopic(src))
		delete(h.subs, src)
	}
	h.mu.Unlock()
	if len(topics) == 0 {
		return nil
	}
	return h.wait(h.client.Unsubscribe(topics...))
}

func (h *MQTTHub) handler(src orientation.Source) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h.mu.Lock()
		want := h.subs[src]
		h.mu.Unlock()
		if !want {
			return
		}
		s, err := h.decode(src, msg.Payload())
		if err != nil {
			if h.bad.Add(1) == 1 {
				log.Printf("mqtthub: %s: %v", msg.Topic(), err)
			}
			return
		}
		h.sink(s)
	}
}

func (h *MQTTHub) decode(src orientation.Source, b []byte) (orientation.Sample, error) {
	var p samplePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return orientation.Sample{}, fmt.Errorf("decode payload: %w", err)
	}
	if len(p.Values) == 0 {
		return orientation.Sample{}, errors.New("payload has no values")
	}
	ts := h.now()
	if p.TimestampNs > 0 {
		ts = time.Unix(0, p.TimestampNs)
	}
	return orientation.Sample{Source: src, Values: p.Values, Timestamp: ts}, nil
}

func (h *MQTTHub) wait(tok mqtt.Token) error {
	if !tok.WaitTimeout(h.cfg.Timeout) {
		return fmt.Errorf("timed out after %s", h.cfg.Timeout)
	}
	return tok.Error()
}

// EncodeSample renders s in the payload format MQTTHub consumes.
func EncodeSample(s orientation.Sample) ([]byte, error) {
	p := samplePayload{Values: s.Values}
	if !s.Timestamp.IsZero() {
		p.TimestampNs = s.Timestamp.UnixNano()
	}
	return json.Marshal(p)
}
