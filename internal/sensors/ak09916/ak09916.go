package ak09916

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"tiltview/internal/i2c"
)

var sleep = time.Sleep

// AK09916 magnetometer, as found inside the ICM-20948. It is reachable on the
// host bus once the ICM-20948 bypass is enabled.

const (
	addrDefault = 0x0C

	regWIA2  = 0x01
	wia2Val  = 0x09
	regST1   = 0x10
	bitDRDY  = 0x01
	regHXL   = 0x11
	regST2   = 0x18
	bitHOFL  = 0x08
	regCNTL2 = 0x31
	regCNTL3 = 0x32
	bitSRST  = 0x01

	modePowerDown    = 0x00
	modeContinuous4  = 0x08 // 100 Hz
	microTeslaPerLSB = 0.15
)

var (
	ErrNotReady = errors.New("ak09916: no new data")
	ErrOverflow = errors.New("ak09916: magnetic sensor overflow")
)

type Sample struct {
	Time time.Time
	// Field in µT, expressed in the ICM-20948 accelerometer axes.
	Field r3.Vec
}

type Device struct {
	dev regIO
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ak09916: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ak09916: dev is nil")
	}
	d := &Device{dev: dev}

	wia, err := d.dev.ReadRegU8(regWIA2)
	if err != nil {
		return nil, fmt.Errorf("ak09916: wia2 read failed: %w", err)
	}
	if wia != wia2Val {
		return nil, fmt.Errorf("ak09916: wia2=0x%02X want 0x%02X", wia, wia2Val)
	}

	if err := d.dev.WriteReg(regCNTL3, bitSRST); err != nil {
		return nil, fmt.Errorf("ak09916: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	// Mode changes must pass through power-down.
	if err := d.dev.WriteReg(regCNTL2, modePowerDown); err != nil {
		return nil, fmt.Errorf("ak09916: power down failed: %w", err)
	}
	sleep(time.Millisecond)
	if err := d.dev.WriteReg(regCNTL2, modeContinuous4); err != nil {
		return nil, fmt.Errorf("ak09916: continuous mode failed: %w", err)
	}
	return d, nil
}

// Read returns the latest measurement. ErrNotReady means no new sample since
// the previous read; ErrOverflow means the reading saturated and was dropped.
func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("ak09916: device is nil")
	}
	st1, err := d.dev.ReadRegU8(regST1)
	if err != nil {
		return Sample{}, fmt.Errorf("ak09916: read st1 failed: %w", err)
	}
	if st1&bitDRDY == 0 {
		return Sample{}, ErrNotReady
	}

	// HXL..ST2; reading ST2 releases the data registers.
	buf := make([]byte, regST2-regHXL+1)
	if err := d.dev.ReadReg(regHXL, buf); err != nil {
		return Sample{}, fmt.Errorf("ak09916: read field failed: %w", err)
	}
	if buf[len(buf)-1]&bitHOFL != 0 {
		return Sample{}, ErrOverflow
	}

	hx := int16(buf[1])<<8 | int16(buf[0])
	hy := int16(buf[3])<<8 | int16(buf[2])
	hz := int16(buf[5])<<8 | int16(buf[4])

	// Magnetometer Y and Z point opposite to the accelerometer's.
	return Sample{
		Time: time.Now(),
		Field: r3.Vec{
			X: float64(hx) * microTeslaPerLSB,
			Y: -float64(hy) * microTeslaPerLSB,
			Z: -float64(hz) * microTeslaPerLSB,
		},
	}, nil
}

// Close puts the sensor into power-down.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	return d.dev.WriteReg(regCNTL2, modePowerDown)
}
