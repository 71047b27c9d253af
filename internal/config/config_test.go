package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tiltview/internal/orientation"
	"tiltview/internal/rotmath"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Tracking.SamplingPeriod != 20*time.Millisecond {
		t.Fatalf("sampling_period=%s want 20ms", cfg.Tracking.SamplingPeriod)
	}
	if !cfg.Tracking.RelativeEnabled() {
		t.Fatalf("relative should default to true")
	}
	if cfg.Tracking.LowFactor != 0.05 || cfg.Tracking.HighFactor != 0.8 || cfg.Tracking.Queue != 64 {
		t.Fatalf("tracking=%+v", cfg.Tracking)
	}
	if cfg.Sensors.Source != "sim" || cfg.Web.Listen != ":8080" {
		t.Fatalf("source=%q web=%q", cfg.Sensors.Source, cfg.Web.Listen)
	}
	// The simulator moves by default so a bare config shows something.
	if cfg.Sensors.Sim.PitchAmpDeg == 0 {
		t.Fatalf("expected sim amplitude defaults")
	}
	if cfg.MQTT.TopicPrefix != "tiltview/sensors" || cfg.Log.Lines != 2000 || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("mqtt=%+v log=%+v", cfg.MQTT, cfg.Log)
	}
	if !reflect.DeepEqual(Default(), cfg) {
		t.Fatalf("Default() differs from empty config")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_TrackingAndEngineConfig(t *testing.T) {
	path := writeTempConfig(t, `
tracking:
  sampling_period: 10ms
  relative: false
  screen_rotation: 270
  low_factor: 0.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	ec := cfg.Tracking.EngineConfig()
	if ec.Relative || ec.ScreenRotation != rotmath.Rotation270 || ec.LowFactor != 0.1 || ec.HighFactor != 0.8 {
		t.Fatalf("engine config=%+v", ec)
	}
	if cfg.Tracking.SamplingPeriod != 10*time.Millisecond {
		t.Fatalf("sampling_period=%s", cfg.Tracking.SamplingPeriod)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"rotation", "tracking: {screen_rotation: 45}\n", "tracking.screen_rotation must be one of 0, 90, 180, 270"},
		{"low factor", "tracking: {low_factor: 1.5}\n", "tracking.low_factor must be in (0,1]"},
		{"high factor", "tracking: {high_factor: -0.2}\n", "tracking.high_factor must be in (0,1]"},
		{"period", "tracking: {sampling_period: -1s}\n", "tracking.sampling_period must be > 0"},
		{"source", "sensors: {source: camera}\n", "sensors.source must be one of sim, mqtt, replay, imu"},
		{"sim sources", "sensors: {sim: {sources: [gyro]}}\n", `sensors.sim.sources: unknown source "gyro"`},
		{"mqtt broker", "sensors: {source: mqtt}\n", "mqtt.broker is required when sensors.source is mqtt"},
		{"replay path", "sensors: {source: replay}\n", "sensors.replay.path is required when sensors.source is replay"},
		{"replay speed", "sensors: {source: replay, replay: {path: a.log, speed: -2}}\n", "sensors.replay.speed must be > 0"},
		{"replay record", "sensors: {source: replay, replay: {path: a.log}}\nrecord: {path: b.log}\n", "record.path cannot be used with sensors.source=replay"},
		{"button pin", "button: {enable: true}\n", "button.pin is required when button.enable is true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_EmbeddedBrokerSuppliesClientURL(t *testing.T) {
	cfg, err := Parse([]byte("sensors: {source: mqtt}\nmqtt: {embedded: {enable: true}}\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.MQTT.Embedded.Listen != ":1883" || cfg.MQTT.Broker != "tcp://127.0.0.1:1883" {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if got := loopback("0.0.0.0:1999"); got != "127.0.0.1:1999" {
		t.Fatalf("loopback=%q", got)
	}
	if got := loopback("10.0.0.2:1883"); got != "10.0.0.2:1883" {
		t.Fatalf("loopback=%q", got)
	}
}

func TestLoad_IMUDefaultsAndSimSources(t *testing.T) {
	cfg, err := Parse([]byte("sensors: {source: imu}\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Sensors.IMU.I2CBus != 1 || cfg.Sensors.IMU.IMUAddr != 0x68 || cfg.Sensors.IMU.MagAddr != 0x0C {
		t.Fatalf("imu=%+v", cfg.Sensors.IMU)
	}

	cfg, err = Parse([]byte("sensors: {sim: {sources: [accel, magnetic_field]}}\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := []orientation.Source{orientation.SourceAccelerometer, orientation.SourceMagneticField}
	if got := cfg.Sensors.Sim.SimSources(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sources=%v want %v", got, want)
	}
}
