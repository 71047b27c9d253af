// Package i2c is a minimal register-oriented I2C bus for the IMU drivers.
package i2c

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("i2c: bus closed")

// BusPath returns the character device for bus n.
func BusPath(n int) string {
	return fmt.Sprintf("/dev/i2c-%d", n)
}

// checkAddr accepts 7-bit addresses only; 0x00 is the general call.
func checkAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c: invalid 7-bit address 0x%X", addr)
	}
	return nil
}
