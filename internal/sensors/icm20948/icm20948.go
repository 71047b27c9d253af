// Package icm20948 reads the accelerometer of an ICM-20948 and exposes its
// AK09916 magnetometer on the host bus.
//
// The auxiliary I2C master is disabled and bypass enabled, so the
// magnetometer answers at 0x0C next to the accelerometer.
package icm20948

import (
	"encoding/binary"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"tiltview/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	bitI2CMstEn   = 0x20
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	clkAuto       = 0x01
	regPwrMgmt2   = 0x07
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2             = 2
	regAccelSmplrtDiv = 0x11
	regAccelConfig    = 0x14
	fsAccel4g         = 0x02

	lsbPerG4g       = 8192.0
	standardGravity = 9.80665
)

type Sample struct {
	Time time.Time
	// Accel in m/s², +g on the axis pointing up.
	Accel r3.Vec
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// step is one register write of the bring-up sequence.
type step struct {
	bank  byte
	reg   byte
	val   byte
	what  string
	after time.Duration
	// optional failures are ignored.
	optional bool
}

// bringUp runs after WHO_AM_I. Reset returns the chip to bank 0.
var bringUp = []step{
	{reg: regIntEnable, val: 0x00, what: "disable interrupts", optional: true},
	{reg: regPwrMgmt1, val: bitReset, what: "reset", after: 100 * time.Millisecond},
	{reg: regPwrMgmt1, val: clkAuto, what: "wake", after: 10 * time.Millisecond},
	{reg: regPwrMgmt2, val: 0x00, what: "enable sensors"},
	// 1125/(1+div) Hz; div 10 gives ~102 Hz.
	{bank: bank2, reg: regAccelSmplrtDiv, val: 10, what: "accel rate", optional: true},
	{bank: bank2, reg: regAccelConfig, val: fsAccel4g, what: "accel range"},
}

type Device struct {
	dev  regIO
	bank byte
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	d := &Device{dev: dev}
	who, err := dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: read WHO_AM_I: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: WHO_AM_I=0x%02X want 0x%02X", who, whoAmIVal)
	}
	// The power-on bank is unknown until it is written once.
	if err := d.dev.WriteReg(regBankSel, 0); err != nil {
		return nil, fmt.Errorf("icm20948: select bank 0: %w", err)
	}

	for _, s := range bringUp {
		if err := d.selectBank(s.bank); err != nil {
			return nil, err
		}
		if err := d.dev.WriteReg(s.reg, s.val); err != nil && !s.optional {
			return nil, fmt.Errorf("icm20948: %s: %w", s.what, err)
		}
		if s.reg == regPwrMgmt1 && s.val == bitReset {
			d.bank = 0
		}
		if s.after > 0 {
			sleep(s.after)
		}
	}
	if err := d.EnableBypass(); err != nil {
		return nil, err
	}
	return d, nil
}

// EnableBypass hands the auxiliary bus over to the host, keeping the other
// USER_CTRL bits.
func (d *Device) EnableBypass() error {
	if err := d.selectBank(0); err != nil {
		return err
	}
	ctrl, err := d.dev.ReadRegU8(regUserCtrl)
	if err != nil {
		return fmt.Errorf("icm20948: read USER_CTRL: %w", err)
	}
	if err := d.dev.WriteReg(regUserCtrl, ctrl&^bitI2CMstEn); err != nil {
		return fmt.Errorf("icm20948: disable aux master: %w", err)
	}
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: enable bypass: %w", err)
	}
	return nil
}

func (d *Device) selectBank(bank byte) error {
	if d.bank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: select bank %d: %w", bank, err)
	}
	d.bank = bank
	return nil
}

// Read returns one accelerometer sample.
func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.selectBank(0); err != nil {
		return Sample{}, err
	}
	var raw [6]byte
	if err := d.dev.ReadReg(regAccelXoutH, raw[:]); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read accel: %w", err)
	}
	axis := func(i int) float64 {
		return float64(int16(binary.BigEndian.Uint16(raw[i:]))) * standardGravity / lsbPerG4g
	}
	return Sample{Time: time.Now(), Accel: r3.Vec{X: axis(0), Y: axis(2), Z: axis(4)}}, nil
}
