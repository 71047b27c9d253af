package ak09916

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func newDevice(t *testing.T) (*Device, *fakeI2C) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })

	f := &fakeI2C{regs: map[byte][]byte{regWIA2: {wia2Val}}}
	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	return d, f
}

func TestNew_WIAMismatch(t *testing.T) {
	f := &fakeI2C{regs: map[byte][]byte{regWIA2: {0x48}}}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_EntersContinuousMode(t *testing.T) {
	_, f := newDevice(t)
	want := []writeOp{
		{reg: regCNTL3, val: bitSRST},
		{reg: regCNTL2, val: modePowerDown},
		{reg: regCNTL2, val: modeContinuous4},
	}
	if len(f.writes) != len(want) {
		t.Fatalf("writes=%v want %v", f.writes, want)
	}
	for i := range want {
		if f.writes[i] != want[i] {
			t.Fatalf("writes[%d]=%v want %v", i, f.writes[i], want[i])
		}
	}
}

func TestRead_ScalesAndAlignsAxes(t *testing.T) {
	d, f := newDevice(t)
	f.regs[regST1] = []byte{bitDRDY}
	f.regs[regHXL] = []byte{
		0x64, 0x00, // hx = 100
		0x9C, 0xFF, // hy = -100
		0xC8, 0x00, // hz = 200
		0x00,       // TMPS
		0x00,       // ST2
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(s.Field.X-15) > 1e-9 || math.Abs(s.Field.Y-15) > 1e-9 || math.Abs(s.Field.Z+30) > 1e-9 {
		t.Fatalf("field=%v want (15, 15, -30)", s.Field)
	}
}

func TestRead_NotReadyAndOverflow(t *testing.T) {
	d, f := newDevice(t)
	f.regs[regST1] = []byte{0x00}
	if _, err := d.Read(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err=%v want ErrNotReady", err)
	}

	f.regs[regST1] = []byte{bitDRDY}
	f.regs[regHXL] = []byte{0, 0, 0, 0, 0, 0, 0, bitHOFL}
	if _, err := d.Read(); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err=%v want ErrOverflow", err)
	}
}

func TestClose_PowersDown(t *testing.T) {
	d, f := newDevice(t)
	f.writes = nil
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(f.writes) != 1 || f.writes[0] != (writeOp{reg: regCNTL2, val: modePowerDown}) {
		t.Fatalf("writes=%v", f.writes)
	}
}
