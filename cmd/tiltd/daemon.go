package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltview/internal/button"
	"tiltview/internal/config"
	"tiltview/internal/mqttlink"
	"tiltview/internal/orientation"
	"tiltview/internal/replay"
	"tiltview/internal/sensorhub"
	"tiltview/internal/sim"
	"tiltview/internal/tilt"
	"tiltview/internal/udp"
	"tiltview/internal/web"
)

// daemon holds everything startRuntime brought up, in start order.
type daemon struct {
	broker   *mqttlink.Broker
	client   mqtt.Client
	recorder *replay.Writer
	hub      sensorhub.Hub
	svc      *tilt.Service
	udp      *udp.Sender
	btn      *button.Button

	status      *web.Status
	broadcaster *web.TiltBroadcaster
	webErr      chan error
}

func startRuntime(ctx context.Context, cfg config.Config, logs *web.LogBuffer) (rt *daemon, err error) {
	rt = &daemon{
		status:      web.NewStatus(),
		broadcaster: web.NewTiltBroadcaster(),
		webErr:      make(chan error, 1),
	}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if cfg.MQTT.Embedded.Enable {
		rt.broker, err = mqttlink.StartBroker(mqttlink.BrokerConfig{
			Listen:   cfg.MQTT.Embedded.Listen,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return rt, err
		}
	}
	if needsMQTTClient(cfg) {
		rt.client, err = mqttlink.Dial(mqttlink.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return rt, err
		}
	}

	// Hubs only deliver after Subscribe, which runs inside svc.Start.
	var svc *tilt.Service
	sink := sensorhub.Sink(func(s orientation.Sample) bool { return svc.Deliver(s) })
	if p := strings.TrimSpace(cfg.Record.Path); p != "" {
		rt.recorder, err = replay.CreateWriter(p)
		if err != nil {
			return rt, fmt.Errorf("record: %w", err)
		}
		sink = sensorhub.NewRecorder(rt.recorder, sink).Sink()
		log.Printf("recording samples to %s", p)
	}

	rt.hub, err = newHub(cfg, sink, rt.client)
	if err != nil {
		return rt, err
	}

	svc = tilt.New(tilt.Config{
		SamplingPeriod: cfg.Tracking.SamplingPeriod,
		QueueSize:      cfg.Tracking.Queue,
		Engine:         cfg.Tracking.EngineConfig(),
	}, rt.hub)
	rt.svc = svc

	outputs := map[string]any{"web": cfg.Web.Listen}
	svc.AddListener(rt.broadcaster)
	if dest := strings.TrimSpace(cfg.UDP.Dest); dest != "" {
		rt.udp, err = udp.NewSender(dest)
		if err != nil {
			return rt, err
		}
		svc.AddListener(rt.udp)
		outputs["udp"] = dest
	}
	if rt.client != nil && cfg.MQTT.PublishTopic != "" {
		svc.AddListener(mqttlink.NewPublisher(rt.client, mqttlink.PublisherConfig{Topic: cfg.MQTT.PublishTopic}))
		outputs["mqtt"] = cfg.MQTT.PublishTopic
	}
	if rt.broker != nil {
		outputs["mqtt_broker"] = rt.broker.Addr()
	}
	rt.status.SetStatic(cfg.Sensors.Source, outputs)
	rt.status.SetTiltSource(svc.Snapshot)

	if err = svc.Start(ctx); err != nil {
		return rt, err
	}
	log.Printf("tracking: source=%s period=%s relative=%v rotation=%s",
		cfg.Sensors.Source, cfg.Tracking.SamplingPeriod, cfg.Tracking.RelativeEnabled(), cfg.Tracking.Rotation())

	if cfg.Button.Enable {
		btn, berr := button.Open(ctx, button.Config{Pin: cfg.Button.Pin, Debounce: cfg.Button.Debounce}, svc)
		if berr != nil {
			// Tracking works without the button.
			log.Printf("button init failed: %v", berr)
		} else {
			rt.btn = btn
		}
	}

	if rh, ok := rt.hub.(*sensorhub.ReplayHub); ok {
		go func() {
			<-rh.Done()
			if ctx.Err() == nil {
				log.Printf("replay finished")
			}
		}()
	}

	deps := web.Deps{Status: rt.status, Tilt: svc, Broadcaster: rt.broadcaster, Logs: logs}
	go func() {
		log.Printf("web listening on %s", cfg.Web.Listen)
		err := web.Serve(ctx, cfg.Web.Listen, deps)
		if err == context.Canceled {
			err = nil
		}
		rt.webErr <- err
	}()
	return rt, nil
}

func needsMQTTClient(cfg config.Config) bool {
	if strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return false
	}
	return cfg.Sensors.Source == "mqtt" || cfg.MQTT.PublishTopic != ""
}

func newHub(cfg config.Config, sink sensorhub.Sink, client mqtt.Client) (sensorhub.Hub, error) {
	switch cfg.Sensors.Source {
	case "sim":
		var motion sim.Motion = sim.TiltSim{
			YawAmpDeg:   cfg.Sensors.Sim.YawAmpDeg,
			PitchAmpDeg: cfg.Sensors.Sim.PitchAmpDeg,
			RollAmpDeg:  cfg.Sensors.Sim.RollAmpDeg,
			Period:      cfg.Sensors.Sim.Period,
		}
		if path := strings.TrimSpace(cfg.Sensors.Sim.Script); path != "" {
			ms, err := sim.LoadMotionScript(path)
			if err != nil {
				return nil, fmt.Errorf("sim script: %w", err)
			}
			script, err := sim.NewScript(ms)
			if err != nil {
				return nil, fmt.Errorf("sim script %s: %w", path, err)
			}
			motion = sim.ScriptMotion{Script: script, Start: time.Now(), Loop: cfg.Sensors.Sim.Loop}
		}
		return sensorhub.NewSimHub(sensorhub.SimConfig{Motion: motion, Sources: cfg.Sensors.Sim.SimSources()}, sink), nil
	case "mqtt":
		if client == nil {
			return nil, fmt.Errorf("mqtt source needs a broker connection")
		}
		h, err := sensorhub.NewMQTTHub(client, sensorhub.MQTTConfig{TopicPrefix: cfg.MQTT.TopicPrefix}, sink)
		if err != nil {
			return nil, err
		}
		return h, nil
	case "replay":
		recs, err := replay.Open(cfg.Sensors.Replay.Path)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		h, err := sensorhub.NewReplayHub(sensorhub.ReplayConfig{
			Records: recs,
			Speed:   cfg.Sensors.Replay.Speed,
			Loop:    cfg.Sensors.Replay.Loop,
		}, sink)
		if err != nil {
			return nil, err
		}
		return h, nil
	case "imu":
		h, err := sensorhub.OpenIMUHub(sensorhub.IMUConfig{
			I2CBus:  cfg.Sensors.IMU.I2CBus,
			IMUAddr: cfg.Sensors.IMU.IMUAddr,
			MagAddr: cfg.Sensors.IMU.MagAddr,
		}, sink)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("unknown sensor source %q", cfg.Sensors.Source)
}

// Close tears down in reverse start order. Safe on a partly started daemon.
func (rt *daemon) Close() {
	if rt == nil {
		return
	}
	if rt.btn != nil {
		_ = rt.btn.Close()
	}
	if rt.svc != nil {
		rt.svc.Close()
	}
	if rt.hub != nil {
		if err := rt.hub.Close(); err != nil {
			log.Printf("sensor hub close: %v", err)
		}
	}
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			log.Printf("record close: %v", err)
		}
	}
	if rt.udp != nil {
		_ = rt.udp.Close()
	}
	if rt.client != nil {
		rt.client.Disconnect(250)
	}
	if rt.broker != nil {
		_ = rt.broker.Close()
	}
}
