// Package mqttlink connects tiltview to MQTT: a paho client for sample input
// and estimate output, and an optional embedded broker.
package mqttlink

import (
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Options struct {
	// Broker is a URL such as tcp://127.0.0.1:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Dial connects a paho client and waits for the CONNACK. The client
// reconnects on its own and keeps its session, so subscriptions survive a
// broker restart.
func Dial(o Options) (mqtt.Client, error) {
	broker := strings.TrimSpace(o.Broker)
	if broker == "" {
		return nil, fmt.Errorf("mqttlink: broker is empty")
	}
	if o.ClientID == "" {
		o.ClientID = "tiltview"
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(o.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectTimeout(o.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqttlink: connection lost: %v", err)
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			log.Printf("mqttlink: reconnecting to %s", broker)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(o.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqttlink: connect %s: timed out after %s", broker, o.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttlink: connect %s: %w", broker, err)
	}
	log.Printf("mqttlink: connected to %s as %s", broker, o.ClientID)
	return client, nil
}
