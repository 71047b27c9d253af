package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tiltview/internal/orientation"
	"tiltview/internal/rotmath"
)

type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Web      WebConfig      `yaml:"web"`
	UDP      UDPConfig      `yaml:"udp"`
	Record   RecordConfig   `yaml:"record"`
	Button   ButtonConfig   `yaml:"button"`
	Log      LogConfig      `yaml:"log"`
}

type TrackingConfig struct {
	SamplingPeriod time.Duration `yaml:"sampling_period"`
	// Relative defaults to true when omitted.
	Relative       *bool   `yaml:"relative"`
	ScreenRotation int     `yaml:"screen_rotation"`
	LowFactor      float64 `yaml:"low_factor"`
	HighFactor     float64 `yaml:"high_factor"`
	Queue          int     `yaml:"queue"`
}

// RelativeEnabled reports the effective relative mode.
func (t TrackingConfig) RelativeEnabled() bool { return t.Relative == nil || *t.Relative }

// Rotation returns the validated screen rotation.
func (t TrackingConfig) Rotation() rotmath.ScreenRotation {
	r, _ := rotmath.ParseScreenRotation(t.ScreenRotation)
	return r
}

type SensorsConfig struct {
	// Source selects the sample producer: sim, mqtt, replay or imu.
	Source string       `yaml:"source"`
	Sim    SimConfig    `yaml:"sim"`
	Replay ReplayConfig `yaml:"replay"`
	IMU    IMUConfig    `yaml:"imu"`
}

type SimConfig struct {
	// Sources restricts what the simulator offers; empty offers all four.
	Sources     []string      `yaml:"sources"`
	YawAmpDeg   float64       `yaml:"yaw_amp_deg"`
	PitchAmpDeg float64       `yaml:"pitch_amp_deg"`
	RollAmpDeg  float64       `yaml:"roll_amp_deg"`
	Period      time.Duration `yaml:"period"`
	// Script replaces the sine motion with a keyframed YAML motion script.
	Script string `yaml:"script"`
	Loop   bool   `yaml:"loop"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type IMUConfig struct {
	I2CBus  int    `yaml:"i2c_bus"`
	IMUAddr uint16 `yaml:"imu_addr"`
	MagAddr uint16 `yaml:"mag_addr"`
}

type MQTTConfig struct {
	Broker       string         `yaml:"broker"`
	ClientID     string         `yaml:"client_id"`
	Username     string         `yaml:"username"`
	Password     string         `yaml:"password"`
	TopicPrefix  string         `yaml:"topic_prefix"`
	PublishTopic string         `yaml:"publish_topic"`
	Embedded     EmbeddedBroker `yaml:"embedded"`
}

type EmbeddedBroker struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type UDPConfig struct {
	Dest string `yaml:"dest"`
}

type RecordConfig struct {
	Path string `yaml:"path"`
}

type ButtonConfig struct {
	Enable   bool          `yaml:"enable"`
	Pin      int           `yaml:"pin"`
	Debounce time.Duration `yaml:"debounce"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	// Lines kept in memory for /api/logs.
	Lines int `yaml:"lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() Config {
	cfg, _ := Parse(nil)
	return cfg
}

func (cfg *Config) applyDefaults() error {
	t := &cfg.Tracking
	if t.SamplingPeriod < 0 {
		return fmt.Errorf("tracking.sampling_period must be > 0")
	}
	if t.SamplingPeriod == 0 {
		t.SamplingPeriod = 20 * time.Millisecond
	}
	if _, err := rotmath.ParseScreenRotation(t.ScreenRotation); err != nil {
		return fmt.Errorf("tracking.screen_rotation must be one of 0, 90, 180, 270")
	}
	if t.LowFactor == 0 {
		t.LowFactor = 0.05
	}
	if t.HighFactor == 0 {
		t.HighFactor = 0.8
	}
	if t.LowFactor < 0 || t.LowFactor > 1 {
		return fmt.Errorf("tracking.low_factor must be in (0,1]")
	}
	if t.HighFactor < 0 || t.HighFactor > 1 {
		return fmt.Errorf("tracking.high_factor must be in (0,1]")
	}
	if t.Queue < 0 {
		return fmt.Errorf("tracking.queue must be >= 0")
	}
	if t.Queue == 0 {
		t.Queue = 64
	}

	s := &cfg.Sensors
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = "sim"
	}
	switch s.Source {
	case "sim":
		for _, name := range s.Sim.Sources {
			src, err := orientation.ParseSource(name)
			if err != nil || src == orientation.SourceNone {
				return fmt.Errorf("sensors.sim.sources: unknown source %q", name)
			}
		}
		if s.Sim.Period < 0 {
			return fmt.Errorf("sensors.sim.period must be > 0")
		}
		if s.Sim.YawAmpDeg == 0 && s.Sim.PitchAmpDeg == 0 && s.Sim.RollAmpDeg == 0 && s.Sim.Script == "" {
			s.Sim.YawAmpDeg, s.Sim.PitchAmpDeg, s.Sim.RollAmpDeg = 20, 15, 10
		}
	case "mqtt":
		if strings.TrimSpace(cfg.MQTT.Broker) == "" && !cfg.MQTT.Embedded.Enable {
			return fmt.Errorf("mqtt.broker is required when sensors.source is mqtt")
		}
	case "replay":
		if strings.TrimSpace(s.Replay.Path) == "" {
			return fmt.Errorf("sensors.replay.path is required when sensors.source is replay")
		}
		if s.Replay.Speed == 0 {
			s.Replay.Speed = 1
		}
		if s.Replay.Speed < 0 {
			return fmt.Errorf("sensors.replay.speed must be > 0")
		}
	case "imu":
		if s.IMU.I2CBus < 0 {
			return fmt.Errorf("sensors.imu.i2c_bus must be >= 0")
		}
		if s.IMU.I2CBus == 0 {
			s.IMU.I2CBus = 1
		}
		if s.IMU.IMUAddr == 0 {
			s.IMU.IMUAddr = 0x68
		}
		if s.IMU.MagAddr == 0 {
			s.IMU.MagAddr = 0x0C
		}
	default:
		return fmt.Errorf("sensors.source must be one of sim, mqtt, replay, imu")
	}
	if s.Source == "replay" && strings.TrimSpace(cfg.Record.Path) != "" {
		return fmt.Errorf("record.path cannot be used with sensors.source=replay")
	}

	m := &cfg.MQTT
	if m.ClientID == "" {
		m.ClientID = "tiltview"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "tiltview/sensors"
	}
	if m.Embedded.Enable {
		if m.Embedded.Listen == "" {
			m.Embedded.Listen = ":1883"
		}
		if m.Broker == "" {
			m.Broker = "tcp://" + loopback(m.Embedded.Listen)
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Button.Enable {
		if cfg.Button.Pin <= 0 {
			return fmt.Errorf("button.pin is required when button.enable is true")
		}
		if cfg.Button.Debounce <= 0 {
			cfg.Button.Debounce = 50 * time.Millisecond
		}
	}

	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.Lines <= 0 {
		cfg.Log.Lines = 2000
	}
	return nil
}

// loopback turns a listen address such as ":1883" into one a local client
// can dial.
func loopback(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}
	if strings.HasPrefix(listen, "0.0.0.0:") {
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return listen
}

// SimSources parses sensors.sim.sources. Empty means every source.
func (s SimConfig) SimSources() []orientation.Source {
	out := make([]orientation.Source, 0, len(s.Sources))
	for _, name := range s.Sources {
		if src, err := orientation.ParseSource(name); err == nil && src != orientation.SourceNone {
			out = append(out, src)
		}
	}
	return out
}

// EngineConfig maps the tracking section onto the orientation engine.
func (t TrackingConfig) EngineConfig() orientation.Config {
	return orientation.Config{
		ScreenRotation: t.Rotation(),
		Relative:       t.RelativeEnabled(),
		LowFactor:      t.LowFactor,
		HighFactor:     t.HighFactor,
	}
}
