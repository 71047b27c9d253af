//go:build !linux || (!arm && !arm64)

package button

import (
	"fmt"
	"io"
	"time"
)

func openLine(pin int, onFall func(ts time.Duration)) (io.Closer, error) {
	return nil, fmt.Errorf("button: gpio unsupported on this platform")
}

var openLineFn = openLine
