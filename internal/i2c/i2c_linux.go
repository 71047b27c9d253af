//go:build linux

package i2c

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ioctlRDWR = 0x0707 // I2C_RDWR
	flagRead  = 0x0001 // I2C_M_RD
)

// kmsg mirrors struct i2c_msg.
type kmsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// kbatch mirrors struct i2c_rdwr_ioctl_data.
type kbatch struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened /dev/i2c-N. One transfer runs at a time, so the IMU and
// magnetometer can be polled from their own goroutines.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

func OpenBus(n int) (*Bus, error) { return Open(BusPath(n)) }

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev addresses the chip at addr on b.
func (b *Bus) Dev(addr uint16) *Dev { return &Dev{bus: b, addr: addr} }

type Dev struct {
	bus  *Bus
	addr uint16
}

// ReadReg fills dst starting at reg. Address write and read share one
// repeated-start transaction.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.transfer([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var v [1]byte
	err := d.transfer([]byte{reg}, v[:])
	return v[0], err
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.transfer([]byte{reg, value}, nil)
}

func (d *Dev) transfer(w, r []byte) error {
	if err := checkAddr(d.addr); err != nil {
		return err
	}
	var msgs [2]kmsg
	n := 0
	if len(w) > 0 {
		msgs[n] = kmsg{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))}
		n++
	}
	if len(r) > 0 {
		msgs[n] = kmsg{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))}
		n++
	}
	if n == 0 {
		return nil
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return ErrClosed
	}
	batch := kbatch{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(n)}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), ioctlRDWR, uintptr(unsafe.Pointer(&batch))); errno != 0 {
		return fmt.Errorf("i2c: 0x%02X on %s: %w", d.addr, d.bus.path, errno)
	}
	return nil
}
