package sensorhub

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"tiltview/internal/i2c"
	"tiltview/internal/orientation"
	"tiltview/internal/sensors/ak09916"
	"tiltview/internal/sensors/icm20948"
)

type IMUConfig struct {
	I2CBus  int
	IMUAddr uint16
	MagAddr uint16
}

type accelReader interface {
	Read() (icm20948.Sample, error)
}

type magReader interface {
	Read() (ak09916.Sample, error)
}

// IMUHub polls an ICM-20948 and its AK09916 over I2C. It offers only the
// accelerometer and magnetic field streams.
type IMUHub struct {
	*pollHub
	bus *i2c.Bus
	mag *ak09916.Device
}

func OpenIMUHub(cfg IMUConfig, sink Sink) (*IMUHub, error) {
	if cfg.I2CBus == 0 {
		cfg.I2CBus = 1
	}
	if cfg.IMUAddr == 0 {
		cfg.IMUAddr = icm20948.DefaultAddress()
	}
	if cfg.MagAddr == 0 {
		cfg.MagAddr = ak09916.DefaultAddress()
	}
	bus, err := i2c.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	imu, err := icm20948.New(bus.Dev(cfg.IMUAddr))
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("imu init: %w", err)
	}
	mag, err := ak09916.New(bus.Dev(cfg.MagAddr))
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("mag init: %w", err)
	}
	h := newIMUHub(imu, mag, sink)
	h.bus = bus
	h.mag = mag
	return h, nil
}

func newIMUHub(accel accelReader, mag magReader, sink Sink) *IMUHub {
	read := func(src orientation.Source, now time.Time) (orientation.Sample, bool, error) {
		var v r3.Vec
		switch src {
		case orientation.SourceAccelerometer:
			s, err := accel.Read()
			if err != nil {
				return orientation.Sample{}, false, err
			}
			v = s.Accel
		case orientation.SourceMagneticField:
			s, err := mag.Read()
			if errors.Is(err, ak09916.ErrNotReady) {
				return orientation.Sample{}, false, nil
			}
			if err != nil {
				return orientation.Sample{}, false, err
			}
			v = s.Field
		default:
			return orientation.Sample{}, false, ErrUnsupported
		}
		return orientation.Sample{Source: src, Values: []float64{v.X, v.Y, v.Z}, Timestamp: now}, true, nil
	}
	offered := []orientation.Source{orientation.SourceAccelerometer, orientation.SourceMagneticField}
	return &IMUHub{pollHub: newPollHub("imuhub", offered, read, sink)}
}

func (h *IMUHub) Close() error {
	err := h.pollHub.Close()
	if h.mag != nil {
		_ = h.mag.Close()
	}
	if h.bus != nil {
		if cerr := h.bus.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
