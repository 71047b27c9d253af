package mqttlink

import (
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltview/internal/orientation"
	"tiltview/internal/sensorhub"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return "127.0.0.1:" + strconv.Itoa(port)
}

func startBroker(t *testing.T, cfg BrokerConfig) *Broker {
	t.Helper()
	cfg.Listen = freeAddr(t)
	b, err := StartBroker(cfg)
	if err != nil {
		t.Fatalf("StartBroker: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func dial(t *testing.T, b *Broker, id string) mqtt.Client {
	t.Helper()
	c, err := Dial(Options{Broker: "tcp://" + b.Addr(), ClientID: id, Username: "phone", Password: "secret", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Disconnect(50) })
	return c
}

func TestDial_RejectsBadCredentials(t *testing.T) {
	b := startBroker(t, BrokerConfig{Username: "phone", Password: "secret"})
	if _, err := Dial(Options{Broker: "tcp://" + b.Addr(), ClientID: "bad", Username: "phone", Password: "nope", Timeout: 2 * time.Second}); err == nil {
		t.Fatalf("expected auth error")
	}
	if _, err := Dial(Options{}); err == nil {
		t.Fatalf("expected error for empty broker")
	}
}

func TestPublisher_RoundTripThroughBroker(t *testing.T) {
	b := startBroker(t, BrokerConfig{Username: "phone", Password: "secret"})
	pubClient := dial(t, b, "pub")
	subClient := dial(t, b, "sub")

	got := make(chan estimatePayload, 4)
	tok := subClient.Subscribe("test/orientation", 0, func(_ mqtt.Client, m mqtt.Message) {
		var p estimatePayload
		if err := json.Unmarshal(m.Payload(), &p); err == nil {
			got <- p
		}
	})
	if !tok.WaitTimeout(2*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	p := NewPublisher(pubClient, PublisherConfig{Topic: "test/orientation"})
	p.OnTiltUpdate(10, -5, 2.5)

	select {
	case e := <-got:
		if e.YawDeg != 10 || e.PitchDeg != -5 || e.RollDeg != 2.5 || e.AtUnixMs == 0 {
			t.Fatalf("payload=%+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no message received")
	}
}

func TestBroker_FeedsMQTTHub(t *testing.T) {
	b := startBroker(t, BrokerConfig{})
	c, err := Dial(Options{Broker: "tcp://" + b.Addr(), ClientID: "hub", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Disconnect(50)

	var mu sync.Mutex
	var samples []orientation.Sample
	h, err := sensorhub.NewMQTTHub(c, sensorhub.MQTTConfig{TopicPrefix: "phone"}, func(s orientation.Sample) bool {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
		return true
	})
	if err != nil {
		t.Fatalf("NewMQTTHub: %v", err)
	}
	defer h.Close()
	if err := h.Subscribe(orientation.SourceGravity, 20*time.Millisecond); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	payload, _ := sensorhub.EncodeSample(orientation.Sample{Values: []float64{0, 0, 9.81}, Timestamp: time.Unix(0, 5)})
	if err := b.Publish(h.SampleTopic(orientation.SourceGravity), payload, false); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n > 0 {
			mu.Lock()
			s := samples[0]
			mu.Unlock()
			if s.Source != orientation.SourceGravity || s.Values[2] != 9.81 || s.Timestamp.UnixNano() != 5 {
				t.Fatalf("sample=%+v", s)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no sample delivered")
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func (f fakeToken) Wait() bool                     { return true }
func (f fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f fakeToken) Done() <-chan struct{}          { return f.done }
func (f fakeToken) Error() error                   { return f.err }

type countingClient struct{ n int }

func (c *countingClient) Publish(string, byte, bool, interface{}) mqtt.Token {
	c.n++
	ch := make(chan struct{})
	close(ch)
	return fakeToken{done: ch}
}

func TestPublisher_MinInterval(t *testing.T) {
	cc := &countingClient{}
	p := NewPublisher(cc, PublisherConfig{MinInterval: 100 * time.Millisecond})
	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }

	p.OnTiltUpdate(1, 2, 3)
	now = now.Add(50 * time.Millisecond)
	p.OnTiltUpdate(1, 2, 3)
	now = now.Add(60 * time.Millisecond)
	p.OnTiltUpdate(1, 2, 3)
	if cc.n != 2 || p.Sent() != 2 {
		t.Fatalf("published=%d sent=%d want 2", cc.n, p.Sent())
	}

	var nilPub *Publisher
	nilPub.OnTiltUpdate(0, 0, 0)
}
