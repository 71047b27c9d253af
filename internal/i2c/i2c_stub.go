//go:build !linux

package i2c

import "errors"

var errNoBus = errors.New("i2c: /dev/i2c-N requires linux")

type Bus struct{}

type Dev struct{}

func Open(string) (*Bus, error) { return nil, errNoBus }

func OpenBus(int) (*Bus, error) { return nil, errNoBus }

func (*Bus) Close() error { return nil }

func (*Bus) Dev(uint16) *Dev { return &Dev{} }

func (*Dev) ReadReg(byte, []byte) error { return errNoBus }

func (*Dev) ReadRegU8(byte) (byte, error) { return 0, errNoBus }

func (*Dev) WriteReg(byte, byte) error { return errNoBus }
