package mqttlink

import (
	"bytes"
	"fmt"
	"log"
	"log/slog"
	"strings"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

type BrokerConfig struct {
	// Listen is host:port for the TCP listener.
	Listen string
	// Username and Password, when set, are required from every client.
	Username string
	Password string
	Logger   *slog.Logger
}

// Broker is an embedded MQTT broker so a phone can publish samples straight
// to the daemon without outside infrastructure.
type Broker struct {
	srv    *mochi.Server
	listen string
}

func StartBroker(cfg BrokerConfig) (*Broker, error) {
	listen := strings.TrimSpace(cfg.Listen)
	if listen == "" {
		return nil, fmt.Errorf("mqttlink: broker listen address is empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	srv := mochi.New(&mochi.Options{
		Logger:       logger,
		InlineClient: true,
		Capabilities: mochi.NewDefaultServerCapabilities(),
	})
	hook := &authHook{HookBase: &mochi.HookBase{}, user: []byte(cfg.Username), pass: []byte(cfg.Password)}
	if err := srv.AddHook(hook, nil); err != nil {
		return nil, fmt.Errorf("mqttlink: add auth hook: %w", err)
	}
	if err := srv.AddListener(listeners.NewTCP(listeners.Config{ID: "tiltview-tcp", Address: listen})); err != nil {
		return nil, fmt.Errorf("mqttlink: listen %s: %w", listen, err)
	}
	if err := srv.Serve(); err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("mqttlink: serve: %w", err)
	}
	log.Printf("mqttlink: broker listening on %s", listen)
	return &Broker{srv: srv, listen: listen}, nil
}

func (b *Broker) Addr() string { return b.listen }

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	if b == nil || b.srv == nil {
		return fmt.Errorf("mqttlink: broker not running")
	}
	return b.srv.Publish(topic, payload, retain, 0)
}

func (b *Broker) Close() error {
	if b == nil || b.srv == nil {
		return nil
	}
	return b.srv.Close()
}

type authHook struct {
	*mochi.HookBase
	user []byte
	pass []byte
}

func (h *authHook) ID() string { return "tiltview-auth" }

func (h *authHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mochi.OnConnectAuthenticate, mochi.OnACLCheck}, []byte{b})
}

func (h *authHook) OnConnectAuthenticate(_ *mochi.Client, pk packets.Packet) bool {
	if len(h.user) == 0 {
		return true
	}
	return bytes.Equal(pk.Connect.Username, h.user) && bytes.Equal(pk.Connect.Password, h.pass)
}

func (h *authHook) OnACLCheck(*mochi.Client, string, bool) bool { return true }
